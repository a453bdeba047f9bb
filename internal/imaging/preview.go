package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// EncodedImage contains an image serialised for transport.
type EncodedImage struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// EncodePNG encodes img as a base64 PNG. Used for grid previews, where
// lossless output keeps small thumbnails crisp.
func EncodePNG(img image.Image) (*EncodedImage, error) {
	return encode(img, imaging.PNG, "image/png")
}

// EncodeJPEG encodes img as a base64 JPEG at the given quality (1-100).
// Used for finished selections, which may be large.
func EncodeJPEG(img image.Image, quality int) (*EncodedImage, error) {
	if quality < 1 || quality > 100 {
		quality = 90
	}
	return encode(img, imaging.JPEG, "image/jpeg", imaging.JPEGQuality(quality))
}

func encode(img image.Image, format imaging.Format, mime string, opts ...imaging.EncodeOption) (*EncodedImage, error) {
	if img == nil {
		return nil, fmt.Errorf("cannot encode nil image")
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, opts...); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return &EncodedImage{
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    mime,
	}, nil
}
