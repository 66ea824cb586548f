package imaging

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
)

// Decode parses an uploaded image file. JPEG, PNG and BMP are supported,
// matching the accepted upload types.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &NormalizationError{Reason: "undecodable image", Err: err}
	}
	return img, nil
}
