package transforms

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color/palette"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/h51assets/h51/internal/domain"
	"github.com/h51assets/h51/internal/registry"
)

// Output is the final transform: it encodes the frame stack to bytes in
// the requested format. Exactly one Output (or other final transform) may
// appear, and only as the last step of a variation's transform list (§4.6,
// §4.9).
//
// WEBP is accepted by the settings schema per the original capability
// contract, but this build has no WebP encoder available among the
// retrieval pack's dependencies (see DESIGN.md); requesting it returns an
// execution error rather than silently mislabeling PNG/JPEG bytes.
type Output struct{}

func NewOutput() *Output { return &Output{} }

func (Output) Name() string                { return "output" }
func (Output) AssetType() domain.AssetType { return domain.AssetTypeImage }
func (Output) Final() bool                 { return true }

func (Output) Schema() registry.Schema {
	zero, hundred := 0.0, 100.0
	return registry.Schema{
		{Name: "image_format", Kind: registry.FieldEnum, Required: true, Enum: []string{"GIF", "JPEG", "PNG", "WEBP"}},
		{Name: "quality", Kind: registry.FieldInt, Default: 85.0, Min: &zero, Max: &hundred},
		{Name: "lossless", Kind: registry.FieldBool, Default: false},
		{Name: "progressive", Kind: registry.FieldBool, Default: false},
		{Name: "versioned", Kind: registry.FieldBool, Default: true},
	}
}

func (Output) Apply(_ context.Context, settings map[string]any, _ *domain.Asset, blob []byte, _ string, state *registry.FrameState, _ []registry.TransformCall) (*registry.FrameState, error) {
	st, err := ensureDecoded(blob, state)
	if err != nil {
		return nil, err
	}

	format := settingString(settings, "image_format", "JPEG")
	quality := settingInt(settings, "quality", 85)

	var buf bytes.Buffer
	var ext, contentType string

	switch format {
	case "PNG":
		ext, contentType = "png", "image/png"
		if err := png.Encode(&buf, st.Frames[0]); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case "JPEG":
		ext, contentType = "jpg", "image/jpeg"
		if err := jpeg.Encode(&buf, st.Frames[0], &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case "GIF":
		ext, contentType = "gif", "image/gif"
		if err := encodeGIF(&buf, st); err != nil {
			return nil, fmt.Errorf("encode gif: %w", err)
		}
	case "WEBP":
		return nil, fmt.Errorf("output: WEBP encoding is not available in this build (no WebP encoder dependency)")
	default:
		return nil, fmt.Errorf("output: unsupported image_format %q", format)
	}

	return registry.WithEncoded(buf.Bytes(), ext, contentType), nil
}

func encodeGIF(buf *bytes.Buffer, st *registry.FrameState) error {
	if len(st.Frames) == 1 {
		return gif.Encode(buf, st.Frames[0], nil)
	}
	g := &gif.GIF{}
	for i, f := range st.Frames {
		pal := toPaletted(f)
		g.Image = append(g.Image, pal)
		delay := st.Delays[i]
		if delay == 0 {
			delay = 10
		}
		g.Delay = append(g.Delay, delay)
	}
	return gif.EncodeAll(buf, g)
}

func toPaletted(img image.Image) *image.Paletted {
	if p, ok := img.(*image.Paletted); ok {
		return p
	}
	b := img.Bounds()
	pal := image.NewPaletted(b, palette.Plan9)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			pal.Set(x, y, img.At(x, y))
		}
	}
	return pal
}
