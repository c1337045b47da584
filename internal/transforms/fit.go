package transforms

import (
	"context"
	"image"

	"github.com/h51assets/h51/internal/domain"
	"github.com/h51assets/h51/internal/registry"
)

// Fit thumbnails every frame into a (width, height) bounding box, scaling
// down to fit while preserving aspect ratio.
type Fit struct{}

func NewFit() *Fit { return &Fit{} }

func (Fit) Name() string                { return "fit" }
func (Fit) AssetType() domain.AssetType { return domain.AssetTypeImage }
func (Fit) Final() bool                 { return false }

func (Fit) Schema() registry.Schema {
	one := 1.0
	return registry.Schema{
		{Name: "width", Kind: registry.FieldInt, Required: true, Min: &one},
		{Name: "height", Kind: registry.FieldInt, Required: true, Min: &one},
		{Name: "resample", Kind: registry.FieldEnum, Default: "nearest", Enum: []string{"nearest"}},
	}
}

func (Fit) Apply(_ context.Context, settings map[string]any, _ *domain.Asset, blob []byte, _ string, state *registry.FrameState, _ []registry.TransformCall) (*registry.FrameState, error) {
	st, err := ensureDecoded(blob, state)
	if err != nil {
		return nil, err
	}

	maxW := settingInt(settings, "width", 0)
	maxH := settingInt(settings, "height", 0)

	out := make([]image.Image, len(st.Frames))
	for i, f := range st.Frames {
		b := f.Bounds()
		w, h := fitDimensions(b.Dx(), b.Dy(), maxW, maxH)
		out[i] = resizeNearest(f, w, h)
	}
	return registry.WithFrames(out, st.Delays), nil
}
