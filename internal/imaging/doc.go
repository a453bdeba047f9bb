// Package imaging provides the image handling behind the picker: decoding
// library assets, caching decoded previews, and encoding results for
// transport.
//
// All operations work with standard Go image.Image types.
//
// # Decoding
//
// FileDecoder opens files with EXIF orientation applied and scales them with
// Fit. Two quality levels exist:
//   - QualityFast: bilinear resampling (bild), used for grid previews
//   - QualityHigh: Lanczos resampling (disintegration/imaging), used when a
//     session finishes and the caller asked for images
//
// Images are never upscaled.
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. Decoding and encoding are
// stateless and can be called concurrently on different images.
//
// # Memory Management
//
// ImageCache enforces both an entry budget and a byte budget and evicts the
// least recently used previews first. A preview missing from the cache is not
// an error: callers decode it again from the library.
//
// # Placeholders
//
// MakePlaceholder produces a tiny blurred image and an average colour (via
// go-colorful, averaged in linear RGB) that a grid can show while the real
// preview decodes.
package imaging
