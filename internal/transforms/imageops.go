package transforms

import "image"

// toNRGBA materializes img into a concrete, directly-addressable buffer.
func toNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x-b.Min.X, y-b.Min.Y, img.At(x, y))
		}
	}
	return out
}

// cropRect returns the sub-image of img bounded by rect (already clamped
// to img's bounds by the caller), copied into a fresh buffer.
func cropRect(img image.Image, rect image.Rectangle) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			out.Set(x-rect.Min.X, y-rect.Min.Y, img.At(x, y))
		}
	}
	return out
}

// resizeNearest scales img to exactly (w, h) using nearest-neighbor
// sampling.
func resizeNearest(img image.Image, w, h int) *image.NRGBA {
	b := img.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	if srcW == 0 || srcH == 0 || w == 0 || h == 0 {
		return out
	}
	for y := 0; y < h; y++ {
		sy := b.Min.Y + y*srcH/h
		for x := 0; x < w; x++ {
			sx := b.Min.X + x*srcW/w
			out.Set(x, y, img.At(sx, sy))
		}
	}
	return out
}

// rotate90CW rotates img 90 degrees clockwise.
func rotate90CW(img image.Image) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Set(h-1-y, x, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}

func rotate180(img image.Image) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Set(w-1-x, h-1-y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}

func rotate270CW(img image.Image) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Set(y, w-1-x, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}

// fitDimensions computes the largest (w, h) that fits within (maxW, maxH)
// while preserving src's aspect ratio.
func fitDimensions(srcW, srcH, maxW, maxH int) (int, int) {
	if srcW == 0 || srcH == 0 {
		return maxW, maxH
	}
	ratio := float64(srcW) / float64(srcH)
	w, h := maxW, int(float64(maxW)/ratio)
	if h > maxH {
		h = maxH
		w = int(float64(maxH) * ratio)
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}
