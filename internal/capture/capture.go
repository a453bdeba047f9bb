// Package capture provides sources of externally captured images, the
// counterpart of a camera in a headless picker.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/image-picker-mcp/internal/logger"
)

// ErrNoImage indicates the capture produced nothing, for example because
// the user dismissed it.
var ErrNoImage = errors.New("no image captured")

// Service produces one image per call.
type Service interface {
	Capture(ctx context.Context) (image.Image, error)
}

// File imports an image from disk as if it had just been captured.
// EXIF orientation is applied so the result is upright.
type File struct {
	Path string
}

// Capture implements Service.
func (f File) Capture(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Path == "" {
		return nil, ErrNoImage
	}
	if _, err := os.Stat(f.Path); err != nil {
		return nil, fmt.Errorf("capture %s: %w", f.Path, err)
	}

	img, err := imaging.Open(f.Path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("capture %s: %w", f.Path, err)
	}
	logger.Debug("captured image", "path", f.Path, "width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	return img, nil
}

// Func adapts a function to Service.
type Func func(ctx context.Context) (image.Image, error)

// Capture implements Service.
func (f Func) Capture(ctx context.Context) (image.Image, error) {
	return f(ctx)
}
