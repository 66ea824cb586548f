// Package imaging converts raw visual sources (camera frames, uploaded
// files) into the canonical representation the inference backend expects.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	xdraw "golang.org/x/image/draw"
)

// Canonical processing parameters. Camera frames and uploads must pass
// through the exact same transform so prediction accuracy does not depend on
// the entry point.
const (
	// TargetWidth and TargetHeight are the fixed canonical resolution.
	TargetWidth  = 640
	TargetHeight = 480
	// JPEGQuality is the encoder quality for the canonical image.
	JPEGQuality = 92
	// ContrastFactor and ContrastMidpoint define the per-channel contrast
	// transform: clamp(0, 255, (v-midpoint)*factor + midpoint).
	ContrastFactor   = 1.1
	ContrastMidpoint = 128
)

// NormalizationError reports a failure to produce a canonical image. It is
// local and non-retryable without a new source.
type NormalizationError struct {
	Reason string
	Err    error
}

func (e *NormalizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("normalize: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("normalize: %s", e.Reason)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// CanonicalImage is a normalized, JPEG-encoded image ready for submission.
// It is immutable once produced and discarded after the prediction resolves.
type CanonicalImage struct {
	Data     []byte
	Width    int
	Height   int
	Mirrored bool
}

// Options control a single normalization pass.
type Options struct {
	Mirror          bool
	EnhanceContrast bool
}

// Normalizer produces canonical images at the fixed target resolution.
type Normalizer struct {
	width   int
	height  int
	quality int
}

// NewNormalizer creates a Normalizer with the canonical defaults.
func NewNormalizer() *Normalizer {
	return &Normalizer{width: TargetWidth, height: TargetHeight, quality: JPEGQuality}
}

// Normalize converts src into a CanonicalImage: stretch to the target
// surface, optional horizontal mirror, optional contrast enhancement, JPEG
// encode.
func (n *Normalizer) Normalize(src image.Image, opts Options) (*CanonicalImage, error) {
	if src == nil {
		return nil, &NormalizationError{Reason: "source not ready"}
	}
	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &NormalizationError{Reason: "source not ready"}
	}

	dst := image.NewRGBA(image.Rect(0, 0, n.width, n.height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)

	if opts.Mirror {
		mirrorHorizontal(dst)
	}
	if opts.EnhanceContrast {
		EnhanceContrast(dst)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: n.quality}); err != nil {
		return nil, &NormalizationError{Reason: "encode failed", Err: err}
	}
	if buf.Len() == 0 {
		return nil, &NormalizationError{Reason: "encode failed"}
	}

	return &CanonicalImage{
		Data:     buf.Bytes(),
		Width:    n.width,
		Height:   n.height,
		Mirrored: opts.Mirror,
	}, nil
}

// mirrorHorizontal flips the image in place around its vertical axis.
func mirrorHorizontal(img *image.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for l, r := 0, len(row)-4; l < r; l, r = l+4, r-4 {
			row[l], row[r] = row[r], row[l]
			row[l+1], row[r+1] = row[r+1], row[l+1]
			row[l+2], row[r+2] = row[r+2], row[l+2]
			row[l+3], row[r+3] = row[r+3], row[l+3]
		}
	}
}

// EnhanceContrast applies the canonical contrast transform to every pixel's
// R, G and B channels in place. Alpha is untouched.
func EnhanceContrast(img *image.RGBA) {
	pix := img.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i] = ContrastValue(pix[i])
		pix[i+1] = ContrastValue(pix[i+1])
		pix[i+2] = ContrastValue(pix[i+2])
	}
}

// ContrastValue computes clamp(0, 255, (v-128)*1.1 + 128) for one channel.
func ContrastValue(v uint8) uint8 {
	f := (float64(v)-ContrastMidpoint)*ContrastFactor + ContrastMidpoint
	f = math.Round(f)
	if f < 0 {
		return 0
	}
	if f > 255 {
		return 255
	}
	return uint8(f)
}
