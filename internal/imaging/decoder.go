package imaging

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/transform"
	"github.com/disintegration/imaging"

	"github.com/ironsheep/image-picker-mcp/internal/asset"
)

// Quality selects the resampling path used when producing an image.
type Quality int

const (
	// QualityFast favours latency and is used for grid previews.
	QualityFast Quality = iota

	// QualityHigh favours fidelity and is used for final output.
	QualityHigh
)

func (q Quality) String() string {
	if q == QualityHigh {
		return "high"
	}
	return "fast"
}

// ErrUnsupportedMedia is returned when an asset has no still-image
// representation the decoder can produce.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// FileDecoder decodes assets whose Location is a path on the local
// filesystem. EXIF orientation is applied so previews display upright.
//
// FileDecoder is stateless and safe for concurrent use.
type FileDecoder struct{}

// NewFileDecoder returns a decoder for filesystem-backed libraries.
func NewFileDecoder() *FileDecoder {
	return &FileDecoder{}
}

// Decode opens the asset's file and scales it to fit within target.
//
// A zero target returns the image at full resolution. Images are never
// upscaled.
//
// # Errors
//
//   - ErrUnsupportedMedia for assets that are not still images
//   - file open or decode failures, wrapped
//   - ctx.Err() if the context is already done
func (d *FileDecoder) Decode(ctx context.Context, a asset.Asset, q Quality, target image.Point) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.MediaType != asset.MediaImage {
		return nil, fmt.Errorf("%w: %s is %s", ErrUnsupportedMedia, a.ID, a.MediaType)
	}

	img, err := imaging.Open(a.Location, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", a.ID, err)
	}

	return Fit(img, q, target), nil
}

// Fit scales img to fit within target while preserving its aspect ratio.
//
// A zero component of target leaves that dimension unconstrained; a zero
// target, or a target larger than img, returns img unchanged.
//
// QualityFast uses bild's bilinear resampler; QualityHigh uses a Lanczos
// filter.
func Fit(img image.Image, q Quality, target image.Point) image.Image {
	w, h := fitSize(img.Bounds().Size(), target)
	if w == img.Bounds().Dx() && h == img.Bounds().Dy() {
		return img
	}

	if q == QualityHigh {
		return imaging.Resize(img, w, h, imaging.Lanczos)
	}
	return transform.Resize(img, w, h, transform.Linear)
}

// fitSize computes the largest size no bigger than target that keeps the
// aspect ratio of src. Each output dimension is at least 1.
func fitSize(src, target image.Point) (int, int) {
	if src.X <= 0 || src.Y <= 0 {
		return src.X, src.Y
	}
	if target.X <= 0 && target.Y <= 0 {
		return src.X, src.Y
	}

	scale := 1.0
	if target.X > 0 && src.X > target.X {
		scale = float64(target.X) / float64(src.X)
	}
	if target.Y > 0 && src.Y > target.Y {
		if s := float64(target.Y) / float64(src.Y); s < scale {
			scale = s
		}
	}
	if scale >= 1.0 {
		return src.X, src.Y
	}

	w := int(float64(src.X)*scale + 0.5)
	h := int(float64(src.Y)*scale + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}
