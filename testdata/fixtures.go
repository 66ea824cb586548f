// Package testdata builds deterministic synthetic images for tests, so no
// binary fixtures need to live in the repository.
package testdata

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
)

// Frame returns a deterministic gradient image. The seed shifts the colors
// so distinct frames compare unequal.
func Frame(width, height int, seed uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x%256) + seed,
				G: uint8(y%256) + seed,
				B: uint8((x+y)%256) + seed,
				A: 255,
			})
		}
	}
	return img
}

// HandFrame returns a camera-sized frame with a skin-toned blob roughly
// where a signing hand would be.
func HandFrame() *image.RGBA {
	img := Frame(640, 480, 0)
	for y := 120; y < 360; y++ {
		for x := 220; x < 420; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 224, G: 172, B: 150, A: 255})
		}
	}
	return img
}

// PNGBytes encodes img as PNG.
func PNGBytes(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png fixture: %w", err)
	}
	return buf.Bytes(), nil
}

// JPEGBytes encodes img as JPEG at the quality the normalizer uses.
func JPEGBytes(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 92}); err != nil {
		return nil, fmt.Errorf("encode jpeg fixture: %w", err)
	}
	return buf.Bytes(), nil
}
