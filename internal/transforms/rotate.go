package transforms

import (
	"context"
	"fmt"
	"image"

	"github.com/h51assets/h51/internal/domain"
	"github.com/h51assets/h51/internal/registry"
)

// Rotate turns every frame 90, 180, or 270 degrees clockwise.
type Rotate struct{}

func NewRotate() *Rotate { return &Rotate{} }

func (Rotate) Name() string                { return "rotate" }
func (Rotate) AssetType() domain.AssetType { return domain.AssetTypeImage }
func (Rotate) Final() bool                 { return false }

func (Rotate) Schema() registry.Schema {
	return registry.Schema{
		{Name: "degrees", Kind: registry.FieldEnum, Required: true, Enum: []string{"90", "180", "270"}},
	}
}

func (Rotate) Apply(_ context.Context, settings map[string]any, _ *domain.Asset, blob []byte, _ string, state *registry.FrameState, _ []registry.TransformCall) (*registry.FrameState, error) {
	st, err := ensureDecoded(blob, state)
	if err != nil {
		return nil, err
	}

	degrees := settingString(settings, "degrees", "90")

	out := make([]image.Image, len(st.Frames))
	for i, f := range st.Frames {
		switch degrees {
		case "90":
			out[i] = rotate90CW(f)
		case "180":
			out[i] = rotate180(f)
		case "270":
			out[i] = rotate270CW(f)
		default:
			return nil, fmt.Errorf("rotate: unsupported degrees %q", degrees)
		}
	}
	return registry.WithFrames(out, st.Delays), nil
}
