package transforms

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	"github.com/h51assets/h51/internal/registry"
)

func encodeTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestCropAppliesUnitRectangle(t *testing.T) {
	blob := encodeTestPNG(t, 100, 100)
	settings := map[string]any{"x0": 0.25, "y0": 0.25, "x1": 0.75, "y1": 0.75}

	state, err := Crop{}.Apply(context.Background(), settings, nil, blob, "", nil, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(state.Frames) != 1 {
		t.Fatalf("expected a single output frame, got %d", len(state.Frames))
	}
	bounds := state.Frames[0].Bounds()
	if bounds.Dx() != 50 || bounds.Dy() != 50 {
		t.Fatalf("expected a 50x50 crop, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestCropRejectsReentryIntoEncodedState(t *testing.T) {
	blob := encodeTestPNG(t, 10, 10)
	encoded := registry.WithEncoded([]byte("already final"), "jpg", "image/jpeg")
	_, err := Crop{}.Apply(context.Background(), nil, nil, blob, "", encoded, nil)
	if err != ErrReentry {
		t.Fatalf("expected ErrReentry, got %v", err)
	}
}

func TestFitScalesDownPreservingAspectRatio(t *testing.T) {
	blob := encodeTestPNG(t, 200, 100)
	settings := map[string]any{"width": 50, "height": 50}

	state, err := Fit{}.Apply(context.Background(), settings, nil, blob, "", nil, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	bounds := state.Frames[0].Bounds()
	if bounds.Dx() != 50 || bounds.Dy() != 25 {
		t.Fatalf("expected a 50x25 fit (2:1 aspect preserved), got %dx%d", bounds.Dx(), bounds.Dy())
	}
}
