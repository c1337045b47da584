package transforms

import (
	"context"
	"image"

	"github.com/h51assets/h51/internal/domain"
	"github.com/h51assets/h51/internal/registry"
)

// AutoOrient applies an Exif orientation tag (passed in via settings by the
// caller, since Exif parsing lives in the upload probe rather than here)
// by rotating frames so stored pixels match the intended display
// orientation.
type AutoOrient struct{}

func NewAutoOrient() *AutoOrient { return &AutoOrient{} }

func (AutoOrient) Name() string                { return "auto_orient" }
func (AutoOrient) AssetType() domain.AssetType { return domain.AssetTypeImage }
func (AutoOrient) Final() bool                 { return false }
func (AutoOrient) Schema() registry.Schema     { return nil }

func (AutoOrient) Apply(_ context.Context, settings map[string]any, _ *domain.Asset, blob []byte, _ string, state *registry.FrameState, _ []registry.TransformCall) (*registry.FrameState, error) {
	st, err := ensureDecoded(blob, state)
	if err != nil {
		return nil, err
	}

	orientation := settingInt(settings, "orientation", 1)
	if orientation == 1 {
		return st, nil
	}

	out := make([]image.Image, len(st.Frames))
	for i, f := range st.Frames {
		switch orientation {
		case 3:
			out[i] = rotate180(f)
		case 6:
			out[i] = rotate90CW(f)
		case 8:
			out[i] = rotate270CW(f)
		default:
			out[i] = toNRGBA(f)
		}
	}
	return registry.WithFrames(out, st.Delays), nil
}
