// Package analyzers implements the built-in analyzer capabilities
// registered against internal/registry. Per SPEC_FULL §1, pixel-level
// algorithms are treated as capability contracts rather than reproduced in
// full fidelity to any particular reference decoder.
package analyzers

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sort"

	"github.com/h51assets/h51/internal/domain"
	"github.com/h51assets/h51/internal/registry"
)

// DominantColor is one bucketed color in a dominant_colors result.
type DominantColor struct {
	RGB    [3]int  `json:"rgb"`
	Weight float64 `json:"weight"`
}

// DominantColorsResult is the analyzer output written to
// meta.image.dominant_colors.
type DominantColorsResult struct {
	Colors []DominantColor `json:"colors"`
}

// DominantColors buckets an image's pixels into coarse RGB cells and
// reports the heaviest buckets by pixel-count weight.
type DominantColors struct{}

func NewDominantColors() *DominantColors { return &DominantColors{} }

func (DominantColors) Name() string              { return "dominant_colors" }
func (DominantColors) AssetType() domain.AssetType { return domain.AssetTypeImage }

func (DominantColors) Schema() registry.Schema {
	maxColorsDefault := 5.0
	minWeightDefault := 0.01
	zero := 0.0
	one := 1.0
	return registry.Schema{
		{Name: "max_colors", Kind: registry.FieldInt, Default: maxColorsDefault, Min: &zero, Max: floatPtr(64)},
		{Name: "min_weight", Kind: registry.FieldFloat, Default: minWeightDefault, Min: &zero, Max: &one},
	}
}

func floatPtr(f float64) *float64 { return &f }

// bucketSize quantizes each color channel to reduce near-duplicate buckets.
const bucketSize = 32

func (DominantColors) Analyze(_ context.Context, settings map[string]any, _ *domain.Asset, blob []byte, _ []registry.AnalyzerCall) (any, error) {
	maxColors := settingInt(settings, "max_colors", 5)
	minWeight := settingFloat(settings, "min_weight", 0.01)

	img, _, err := image.Decode(newReader(blob))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	counts := map[[3]int]int{}
	total := 0

	// Sample at most ~10000 pixels to keep this bounded for large images.
	strideX, strideY := sampleStride(bounds.Dx(), bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y += strideY {
		for x := bounds.Min.X; x < bounds.Max.X; x += strideX {
			r, g, b, a := img.At(x, y).RGBA()
			if a == 0 {
				continue
			}
			bucket := [3]int{
				bucketize(r),
				bucketize(g),
				bucketize(b),
			}
			counts[bucket]++
			total++
		}
	}

	if total == 0 {
		return DominantColorsResult{Colors: []DominantColor{}}, nil
	}

	type weighted struct {
		rgb    [3]int
		weight float64
	}
	all := make([]weighted, 0, len(counts))
	for rgb, c := range counts {
		w := float64(c) / float64(total)
		if w <= minWeight {
			continue
		}
		all = append(all, weighted{rgb, w})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].weight > all[j].weight })
	if len(all) > maxColors {
		all = all[:maxColors]
	}

	out := make([]DominantColor, len(all))
	for i, w := range all {
		out[i] = DominantColor{RGB: w.rgb, Weight: w.weight}
	}
	return DominantColorsResult{Colors: out}, nil
}

func bucketize(c16 uint32) int {
	c8 := int(c16 >> 8)
	return (c8 / bucketSize) * bucketSize
}

func sampleStride(w, h int) (int, int) {
	const targetSamples = 10000
	area := w * h
	if area <= targetSamples {
		return 1, 1
	}
	stride := area / targetSamples
	if stride < 1 {
		stride = 1
	}
	s := intSqrt(stride)
	if s < 1 {
		s = 1
	}
	return s, s
}

func intSqrt(n int) int {
	if n <= 0 {
		return 0
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}

func settingInt(m map[string]any, key string, def int) int {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return def
}

func settingFloat(m map[string]any, key string, def float64) float64 {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return def
}
