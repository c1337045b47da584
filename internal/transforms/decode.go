// Package transforms implements the built-in transform capabilities
// registered against internal/registry. As with internal/analyzers, pixel
// algorithms are capability contracts (§1): correct in behavior and
// interface, implemented against the standard library since none of the
// example repos in the retrieval pack carry an image-resampling dependency
// to ground a third-party choice on (see DESIGN.md).
package transforms

import (
	"bytes"
	"errors"
	"image"
	"image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/h51assets/h51/internal/registry"
)

// ErrReentry is returned when a transform is asked to operate on an
// already-Encoded state — forbidden per §9's tagged-variant re-expression.
var ErrReentry = errors.New("transforms: cannot operate on an already-encoded frame state")

// ensureDecoded returns state as-is if it already holds decoded frames,
// decodes blob into one if state is still None, or rejects re-entry into
// an Encoded state.
func ensureDecoded(blob []byte, state *registry.FrameState) (*registry.FrameState, error) {
	if state == nil || state.Kind == registry.FrameNone {
		return decodeAny(blob)
	}
	if state.Kind == registry.FrameEncoded {
		return nil, ErrReentry
	}
	return state, nil
}

func decodeAny(blob []byte) (*registry.FrameState, error) {
	if g, err := gif.DecodeAll(bytes.NewReader(blob)); err == nil && len(g.Image) > 0 {
		frames := make([]image.Image, len(g.Image))
		delays := make([]int, len(g.Image))
		for i, pal := range g.Image {
			frames[i] = pal
			delays[i] = g.Delay[i]
		}
		return registry.WithFrames(frames, delays), nil
	}
	img, _, err := image.Decode(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	return registry.WithFrames([]image.Image{img}, []int{0}), nil
}
