package analyzers

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func encodeGIF(t *testing.T, frames int) []byte {
	t.Helper()
	palette := []color.Color{color.White, color.Black}
	g := &gif.GIF{}
	for i := 0; i < frames; i++ {
		frame := image.NewPaletted(image.Rect(0, 0, 4, 4), palette)
		g.Image = append(g.Image, frame)
		g.Delay = append(g.Delay, 0)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		t.Fatalf("encode gif: %v", err)
	}
	return buf.Bytes()
}

func TestImageInfoAnalyzePNG(t *testing.T) {
	blob := encodePNG(t, 10, 20)
	result, err := ImageInfo{}.Analyze(context.Background(), nil, nil, blob, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	info := result.(ImageInfoResult)
	if info.Width != 10 || info.Height != 20 {
		t.Fatalf("unexpected dimensions: %+v", info)
	}
	if info.Mode != "RGBA" {
		t.Fatalf("expected RGBA mode for png, got %s", info.Mode)
	}
}

func TestImageInfoAnalyzeRejectsGarbage(t *testing.T) {
	_, err := ImageInfo{}.Analyze(context.Background(), nil, nil, []byte("not an image"), nil)
	if err == nil {
		t.Fatal("expected an error for non-image input")
	}
}

func TestAnimationInfoDetectsMultiFrameGIF(t *testing.T) {
	blob := encodeGIF(t, 3)
	result, err := AnimationInfo{}.Analyze(context.Background(), nil, nil, blob, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	info := result.(AnimationInfoResult)
	if !info.Animated || info.FrameCount != 3 {
		t.Fatalf("expected animated 3-frame result, got %+v", info)
	}
}

func TestAnimationInfoSingleFrameIsNotAnimated(t *testing.T) {
	blob := encodePNG(t, 4, 4)
	result, err := AnimationInfo{}.Analyze(context.Background(), nil, nil, blob, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	info := result.(AnimationInfoResult)
	if info.Animated || info.FrameCount != 1 {
		t.Fatalf("expected non-animated single-frame result for a png, got %+v", info)
	}
}
