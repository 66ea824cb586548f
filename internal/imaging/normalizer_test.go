package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func TestContrastValue(t *testing.T) {
	tests := []struct {
		in   uint8
		want uint8
	}{
		{0, 0},     // (0-128)*1.1+128 = -12.8, clamped
		{11, 0},    // -0.7, clamped
		{12, 0},    // 0.4 rounds down
		{13, 2},    // 1.5 rounds up
		{100, 97},  // 97.2
		{127, 127}, // 126.9
		{128, 128}, // midpoint is a fixed point
		{129, 129}, // 129.1
		{200, 207}, // 207.2
		{243, 255}, // 254.5 rounds up
		{244, 255}, // 255.6, clamped
		{255, 255}, // 267.7, clamped
	}

	for _, tt := range tests {
		if got := ContrastValue(tt.in); got != tt.want {
			t.Errorf("ContrastValue(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

// clampRound is an independent rendition of the documented transform,
// clamp(0,255,(v-128)*1.1+128), used to pin the implementation to it.
func clampRound(v uint8) uint8 {
	f := (float64(v)-128)*1.1 + 128
	if f < 0 {
		return 0
	}
	if f > 255 {
		return 255
	}
	return uint8(f + 0.5)
}

func TestContrastValue_AllInputsMatchFormula(t *testing.T) {
	for v := 0; v <= 255; v++ {
		got := ContrastValue(uint8(v))
		want := clampRound(uint8(v))
		if got != want {
			t.Fatalf("ContrastValue(%d) = %d, want %d", v, got, want)
		}
	}
}

func TestEnhanceContrast_AlphaUntouched(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = 200
		img.Pix[i+1] = 100
		img.Pix[i+2] = 50
		img.Pix[i+3] = 170
	}

	EnhanceContrast(img)

	for i := 0; i < len(img.Pix); i += 4 {
		if img.Pix[i+3] != 170 {
			t.Fatalf("alpha channel changed: got %d, want 170", img.Pix[i+3])
		}
		if img.Pix[i] != ContrastValue(200) || img.Pix[i+1] != ContrastValue(100) || img.Pix[i+2] != ContrastValue(50) {
			t.Fatalf("color channels = (%d,%d,%d), want (%d,%d,%d)",
				img.Pix[i], img.Pix[i+1], img.Pix[i+2],
				ContrastValue(200), ContrastValue(100), ContrastValue(50))
		}
	}
}

func TestNormalize_SourceNotReady(t *testing.T) {
	n := NewNormalizer()

	for _, src := range []image.Image{nil, image.NewRGBA(image.Rect(0, 0, 0, 0))} {
		_, err := n.Normalize(src, Options{})
		var ne *NormalizationError
		if !errors.As(err, &ne) {
			t.Fatalf("Normalize() error = %v, want *NormalizationError", err)
		}
		if ne.Reason != "source not ready" {
			t.Errorf("Reason = %q, want %q", ne.Reason, "source not ready")
		}
	}
}

func TestNormalize_ProducesCanonicalJPEG(t *testing.T) {
	n := NewNormalizer()
	src := solidImage(320, 240, color.RGBA{R: 90, G: 160, B: 220, A: 255})

	canon, err := n.Normalize(src, Options{EnhanceContrast: true})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(canon.Data) == 0 {
		t.Fatal("canonical image has no data")
	}
	if canon.Width != TargetWidth || canon.Height != TargetHeight {
		t.Errorf("dimensions = %dx%d, want %dx%d", canon.Width, canon.Height, TargetWidth, TargetHeight)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(canon.Data))
	if err != nil {
		t.Fatalf("canonical data is not valid JPEG: %v", err)
	}
	b := decoded.Bounds()
	if b.Dx() != TargetWidth || b.Dy() != TargetHeight {
		t.Errorf("decoded size = %dx%d, want %dx%d", b.Dx(), b.Dy(), TargetWidth, TargetHeight)
	}
}

// Camera frames and uploaded files must produce byte-identical canonical
// images for the same pixels. The upload path goes through a lossless PNG
// round trip to simulate a file on disk.
func TestNormalize_CameraUploadParity(t *testing.T) {
	n := NewNormalizer()
	frame := gradientImage(400, 300)

	fromCamera, err := n.Normalize(frame, Options{EnhanceContrast: true})
	if err != nil {
		t.Fatalf("camera path error = %v", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, frame); err != nil {
		t.Fatalf("png encode error = %v", err)
	}
	uploaded, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	fromUpload, err := n.Normalize(uploaded, Options{EnhanceContrast: true})
	if err != nil {
		t.Fatalf("upload path error = %v", err)
	}

	if !bytes.Equal(fromCamera.Data, fromUpload.Data) {
		t.Error("camera and upload paths produced different canonical bytes")
	}
}

func TestNormalize_Mirror(t *testing.T) {
	// Left half red, right half blue. After mirroring the decoded left half
	// must be blue.
	src := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			if x < 50 {
				src.SetRGBA(x, y, color.RGBA{R: 255, A: 255})
			} else {
				src.SetRGBA(x, y, color.RGBA{B: 255, A: 255})
			}
		}
	}

	n := NewNormalizer()
	canon, err := n.Normalize(src, Options{Mirror: true})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if !canon.Mirrored {
		t.Error("Mirrored flag not set")
	}

	decoded, err := jpeg.Decode(bytes.NewReader(canon.Data))
	if err != nil {
		t.Fatalf("jpeg decode error = %v", err)
	}

	r, _, b, _ := decoded.At(10, TargetHeight/2).RGBA()
	if b <= r {
		t.Errorf("left edge after mirror: r=%d b=%d, want blue dominant", r>>8, b>>8)
	}
	r, _, b, _ = decoded.At(TargetWidth-10, TargetHeight/2).RGBA()
	if r <= b {
		t.Errorf("right edge after mirror: r=%d b=%d, want red dominant", r>>8, b>>8)
	}
}

func TestDecode_Unsupported(t *testing.T) {
	if _, err := Decode([]byte("definitely not an image")); err == nil {
		t.Error("Decode() expected error for garbage input")
	}
}

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func gradientImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: uint8((x + y) * 255 / (w + h)),
				A: 255,
			})
		}
	}
	return img
}
