package imaging

import (
	"fmt"
	"image"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/transform"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// HSLColor represents a color in HSL (Hue, Saturation, Lightness) color space.
type HSLColor struct {
	H int `json:"h"` // Hue: 0-360 degrees (0=red, 120=green, 240=blue)
	S int `json:"s"` // Saturation: 0-100 percent (0=gray, 100=vivid)
	L int `json:"l"` // Lightness: 0-100 percent (0=black, 50=normal, 100=white)
}

// Placeholder is a cheap stand-in shown while a preview decodes.
type Placeholder struct {
	// Hex is the average colour of the image as "#rrggbb".
	Hex string `json:"hex"`

	// HSL is the same colour in HSL.
	HSL HSLColor `json:"hsl"`

	// Image is a tiny blurred rendition of the source.
	Image *EncodedImage `json:"image,omitempty"`
}

// placeholderSize is the longest edge of the blurred placeholder image.
const placeholderSize = 16

// AverageColor returns the mean colour of img, averaged in linear RGB so
// that bright and dark regions mix the way the eye perceives them.
//
// Fully transparent pixels are ignored. An image with no opaque pixels
// averages to black.
//
// # Performance
//
// Every pixel is visited, so callers should pass a downscaled image.
func AverageColor(img image.Image) colorful.Color {
	bounds := img.Bounds()
	var r, g, b float64
	n := 0

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c, ok := colorful.MakeColor(img.At(x, y))
			if !ok {
				continue
			}
			lr, lg, lb := c.LinearRgb()
			r += lr
			g += lg
			b += lb
			n++
		}
	}

	if n == 0 {
		return colorful.Color{}
	}
	return colorful.LinearRgb(r/float64(n), g/float64(n), b/float64(n)).Clamped()
}

// MakePlaceholder downsamples img, blurs it, and reports its average
// colour.
func MakePlaceholder(img image.Image) (*Placeholder, error) {
	if img == nil {
		return nil, fmt.Errorf("cannot build placeholder for nil image")
	}

	w, h := fitSize(img.Bounds().Size(), image.Pt(placeholderSize, placeholderSize))
	small := transform.Resize(img, w, h, transform.Box)
	blurred := blur.Box(small, 1.5)

	avg := AverageColor(small)
	hue, sat, light := avg.Hsl()
	if math.IsNaN(hue) {
		hue = 0
	}

	encoded, err := EncodePNG(blurred)
	if err != nil {
		return nil, err
	}

	return &Placeholder{
		Hex: avg.Hex(),
		HSL: HSLColor{
			H: int(math.Round(hue)),
			S: int(math.Round(sat * 100)),
			L: int(math.Round(light * 100)),
		},
		Image: encoded,
	}, nil
}
