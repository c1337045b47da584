package transforms

import (
	"context"
	"image"

	"github.com/h51assets/h51/internal/domain"
	"github.com/h51assets/h51/internal/registry"
)

// FocalPointCrop crops each frame around the asset's stored focal point
// (meta.image.focal_point, unit coordinates, defaulting to center),
// optionally to a target aspect ratio, with optional padding. When
// as_fallback is set, the crop is skipped entirely if a prior "crop"
// transform already ran in this pipeline (checked against history), since
// the caller's explicit crop should win.
type FocalPointCrop struct{}

func NewFocalPointCrop() *FocalPointCrop { return &FocalPointCrop{} }

func (FocalPointCrop) Name() string                { return "focal_point_crop" }
func (FocalPointCrop) AssetType() domain.AssetType { return domain.AssetTypeImage }
func (FocalPointCrop) Final() bool                 { return false }

func (FocalPointCrop) Schema() registry.Schema {
	zero := 0.0
	return registry.Schema{
		{Name: "aspect_width", Kind: registry.FieldFloat, Min: &zero},
		{Name: "aspect_height", Kind: registry.FieldFloat, Min: &zero},
		{Name: "padding", Kind: registry.FieldFloat, Default: 0.0, Min: &zero},
		{Name: "as_fallback", Kind: registry.FieldBool, Default: false},
	}
}

func priorCropRan(history []registry.TransformCall) bool {
	for _, h := range history {
		if h.Name == "crop" {
			return true
		}
	}
	return false
}

func (FocalPointCrop) Apply(_ context.Context, settings map[string]any, asset *domain.Asset, blob []byte, _ string, state *registry.FrameState, history []registry.TransformCall) (*registry.FrameState, error) {
	if settingBool(settings, "as_fallback", false) && priorCropRan(history) {
		return ensureDecoded(blob, state)
	}

	st, err := ensureDecoded(blob, state)
	if err != nil {
		return nil, err
	}

	fx, fy := focalPoint(asset)
	aspectW := settingFloat(settings, "aspect_width", 0)
	aspectH := settingFloat(settings, "aspect_height", 0)
	padding := settingFloat(settings, "padding", 0)

	out := make([]image.Image, len(st.Frames))
	for i, f := range st.Frames {
		out[i] = cropToRect(f, focalRect(f.Bounds(), fx, fy, aspectW, aspectH, padding))
	}
	return registry.WithFrames(out, st.Delays), nil
}

// focalPoint reads meta.image.focal_point (unit coordinates), defaulting
// to the image's geometric center.
func focalPoint(asset *domain.Asset) (float64, float64) {
	if asset == nil || asset.Meta == nil {
		return 0.5, 0.5
	}
	img, ok := asset.Meta[string(domain.AssetTypeImage)]
	if !ok {
		return 0.5, 0.5
	}
	raw, ok := img["focal_point"].(map[string]any)
	if !ok {
		return 0.5, 0.5
	}
	x, _ := raw["x"].(float64)
	y, _ := raw["y"].(float64)
	if x == 0 && y == 0 {
		return 0.5, 0.5
	}
	return x, y
}

func focalRect(bounds image.Rectangle, fx, fy, aspectW, aspectH, padding float64) image.Rectangle {
	w, h := bounds.Dx(), bounds.Dy()
	targetW, targetH := w, h
	if aspectW > 0 && aspectH > 0 {
		targetW, targetH = fitDimensions(int(aspectW*1000), int(aspectH*1000), w, h)
	}
	targetW = clampInt(int(float64(targetW)*(1+padding)), 1, w)
	targetH = clampInt(int(float64(targetH)*(1+padding)), 1, h)

	cx := bounds.Min.X + int(fx*float64(w))
	cy := bounds.Min.Y + int(fy*float64(h))

	x0 := clampInt(cx-targetW/2, bounds.Min.X, bounds.Max.X-targetW)
	y0 := clampInt(cy-targetH/2, bounds.Min.Y, bounds.Max.Y-targetH)

	return image.Rect(x0, y0, x0+targetW, y0+targetH)
}

func clampInt(v, min, max int) int {
	if max < min {
		max = min
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
