package transforms

import (
	"context"
	"image"

	"github.com/h51assets/h51/internal/domain"
	"github.com/h51assets/h51/internal/registry"
)

// Crop cuts a rectangle specified in unit coordinates [0,1] out of every
// frame.
type Crop struct{}

func NewCrop() *Crop { return &Crop{} }

func (Crop) Name() string                { return "crop" }
func (Crop) AssetType() domain.AssetType { return domain.AssetTypeImage }
func (Crop) Final() bool                 { return false }

func (Crop) Schema() registry.Schema {
	zero, one := 0.0, 1.0
	return registry.Schema{
		{Name: "x0", Kind: registry.FieldFloat, Required: true, Min: &zero, Max: &one},
		{Name: "y0", Kind: registry.FieldFloat, Required: true, Min: &zero, Max: &one},
		{Name: "x1", Kind: registry.FieldFloat, Required: true, Min: &zero, Max: &one},
		{Name: "y1", Kind: registry.FieldFloat, Required: true, Min: &zero, Max: &one},
	}
}

func (Crop) Apply(_ context.Context, settings map[string]any, _ *domain.Asset, blob []byte, _ string, state *registry.FrameState, _ []registry.TransformCall) (*registry.FrameState, error) {
	st, err := ensureDecoded(blob, state)
	if err != nil {
		return nil, err
	}

	x0, y0 := settingFloat(settings, "x0", 0), settingFloat(settings, "y0", 0)
	x1, y1 := settingFloat(settings, "x1", 1), settingFloat(settings, "y1", 1)

	out := make([]image.Image, len(st.Frames))
	for i, f := range st.Frames {
		b := f.Bounds()
		rect := image.Rect(
			b.Min.X+int(x0*float64(b.Dx())),
			b.Min.Y+int(y0*float64(b.Dy())),
			b.Min.X+int(x1*float64(b.Dx())),
			b.Min.Y+int(y1*float64(b.Dy())),
		).Canon().Intersect(b)
		out[i] = cropRect(f, rect)
	}
	return registry.WithFrames(out, st.Delays), nil
}

// cropToRect is shared by focal_point_crop.
func cropToRect(f image.Image, rect image.Rectangle) image.Image {
	return cropRect(f, rect.Canon().Intersect(f.Bounds()))
}
