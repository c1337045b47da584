package analyzers

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/h51assets/h51/internal/domain"
	"github.com/h51assets/h51/internal/registry"
)

// ImageInfoResult is the analyzer output written to meta.image.image_info:
// a lightweight mode+size header probe, matching the original's PIL
// mode/size probe without a full decode.
type ImageInfoResult struct {
	Mode   string `json:"mode"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ImageInfo probes an image's header for its pixel format and dimensions.
type ImageInfo struct{}

func NewImageInfo() *ImageInfo { return &ImageInfo{} }

func (ImageInfo) Name() string                { return "image_info" }
func (ImageInfo) AssetType() domain.AssetType { return domain.AssetTypeImage }
func (ImageInfo) Schema() registry.Schema     { return nil }

func (ImageInfo) Analyze(_ context.Context, _ map[string]any, _ *domain.Asset, blob []byte, _ []registry.AnalyzerCall) (any, error) {
	cfg, format, err := image.DecodeConfig(newReader(blob))
	if err != nil {
		return nil, fmt.Errorf("probe image header: %w", err)
	}
	mode := "RGB"
	switch format {
	case "png":
		mode = "RGBA"
	case "gif":
		mode = "P"
	}
	return ImageInfoResult{Mode: mode, Width: cfg.Width, Height: cfg.Height}, nil
}

// AnimationInfoResult is the analyzer output written to
// meta.image.animation_info.
type AnimationInfoResult struct {
	Animated   bool `json:"animated"`
	FrameCount int  `json:"frame_count"`
}

// AnimationInfo reports whether a (GIF) image carries more than one frame.
type AnimationInfo struct{}

func NewAnimationInfo() *AnimationInfo { return &AnimationInfo{} }

func (AnimationInfo) Name() string                { return "animation_info" }
func (AnimationInfo) AssetType() domain.AssetType { return domain.AssetTypeImage }
func (AnimationInfo) Schema() registry.Schema     { return nil }

func (AnimationInfo) Analyze(_ context.Context, _ map[string]any, _ *domain.Asset, blob []byte, history []registry.AnalyzerCall) (any, error) {
	g, err := decodeGIF(blob)
	if err != nil {
		// Not a GIF (or undecodable as one): a single-frame format.
		return AnimationInfoResult{Animated: false, FrameCount: 1}, nil
	}
	return AnimationInfoResult{Animated: len(g.Image) > 1, FrameCount: len(g.Image)}, nil
}
