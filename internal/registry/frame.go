package registry

import "image"

// FrameStateKind discriminates FrameState's variant, re-expressing the
// source's living frame-list as the tagged variant prescribed in §9:
// None | Frames(list) | Encoded(bytes).
type FrameStateKind int

const (
	// FrameNone is the initial state before any transform has run.
	FrameNone FrameStateKind = iota
	// FrameDecoded holds one or more decoded image frames plus their
	// per-frame delay (animation) in hundredths of a second.
	FrameDecoded
	// FrameEncoded holds the final encoded bytes produced by a final
	// transform. No further transform may run after this state.
	FrameEncoded
)

// FrameState is the in-memory pipeline state threaded through a transform
// chain.
type FrameState struct {
	Kind FrameStateKind

	Frames []image.Image
	Delays []int // hundredths of a second, parallel to Frames

	Encoded     []byte
	EncodedExt  string
	ContentType string
}

// WithFrames returns a new Decoded state. Re-entry into Decoded after
// Encoded is a pipeline validation error the caller must reject (§9).
func WithFrames(frames []image.Image, delays []int) *FrameState {
	return &FrameState{Kind: FrameDecoded, Frames: frames, Delays: delays}
}

// WithEncoded returns a new Encoded state, produced only by a final
// transform.
func WithEncoded(data []byte, ext, contentType string) *FrameState {
	return &FrameState{Kind: FrameEncoded, Encoded: data, EncodedExt: ext, ContentType: contentType}
}
