package transforms

import (
	"context"
	"fmt"
	"image"

	"github.com/h51assets/h51/internal/domain"
	"github.com/h51assets/h51/internal/registry"
)

// SingleFrame selects one frame out of an animation, collapsing the frame
// stack to length 1.
type SingleFrame struct{}

func NewSingleFrame() *SingleFrame { return &SingleFrame{} }

func (SingleFrame) Name() string                { return "single_frame" }
func (SingleFrame) AssetType() domain.AssetType { return domain.AssetTypeImage }
func (SingleFrame) Final() bool                 { return false }

func (SingleFrame) Schema() registry.Schema {
	zero := 0.0
	return registry.Schema{
		{Name: "index", Kind: registry.FieldInt, Default: 0.0, Min: &zero},
	}
}

func (SingleFrame) Apply(_ context.Context, settings map[string]any, _ *domain.Asset, blob []byte, _ string, state *registry.FrameState, _ []registry.TransformCall) (*registry.FrameState, error) {
	st, err := ensureDecoded(blob, state)
	if err != nil {
		return nil, err
	}

	idx := settingInt(settings, "index", 0)
	if idx < 0 || idx >= len(st.Frames) {
		return nil, fmt.Errorf("single_frame: index %d out of range [0,%d)", idx, len(st.Frames))
	}
	return registry.WithFrames([]image.Image{st.Frames[idx]}, []int{0}), nil
}
