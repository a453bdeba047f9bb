package imaging

import (
	"image"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	// DefaultCacheEntries is the entry budget used when none is configured.
	DefaultCacheEntries = 100

	// DefaultCacheBytes is the byte budget used when none is configured (128 MB).
	DefaultCacheBytes int64 = 128_000_000
)

// ImageCache holds decoded images keyed by K under two budgets: a maximum
// number of entries and a maximum total byte cost. When either budget is
// exceeded the least recently used entries are evicted first.
//
// ImageCache is safe for concurrent use. Reads are not linearizable with
// concurrent writes: a Get racing an Add may miss the new entry, in which
// case the caller is expected to decode again.
//
// # Cost Model
//
// The cost of an entry is the size of its pixel buffers as reported by
// ImageBytes. An image whose cost alone exceeds the byte budget is never
// stored.
//
// # Example Usage
//
//	cache := imaging.NewImageCache[string](100, 128_000_000)
//	cache.Add("a", img)
//	if img, ok := cache.Get("a"); ok {
//	    // use img
//	}
type ImageCache[K comparable] struct {
	mu         sync.Mutex
	lru        *simplelru.LRU[K, cacheEntry]
	maxBytes   int64
	totalBytes int64
}

type cacheEntry struct {
	img  image.Image
	cost int64
}

// NewImageCache creates an empty cache. Non-positive budgets fall back to
// DefaultCacheEntries and DefaultCacheBytes.
func NewImageCache[K comparable](maxEntries int, maxBytes int64) *ImageCache[K] {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	if maxBytes <= 0 {
		maxBytes = DefaultCacheBytes
	}

	c := &ImageCache[K]{maxBytes: maxBytes}
	// NewLRU only fails for a non-positive size, which is ruled out above.
	c.lru, _ = simplelru.NewLRU[K, cacheEntry](maxEntries, c.onEvict)
	return c
}

// onEvict runs with c.mu held.
func (c *ImageCache[K]) onEvict(_ K, e cacheEntry) {
	c.totalBytes -= e.cost
}

// Add stores img under key, replacing any previous entry, and evicts least
// recently used entries until both budgets hold again.
//
// Returns false when img is nil or too large to cache at all.
func (c *ImageCache[K]) Add(key K, img image.Image) bool {
	if img == nil {
		return false
	}
	cost := ImageBytes(img)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Remove(key)
	if cost > c.maxBytes {
		return false
	}

	c.lru.Add(key, cacheEntry{img: img, cost: cost})
	c.totalBytes += cost
	for c.totalBytes > c.maxBytes {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
	}
	return true
}

// Get returns the cached image for key and marks it most recently used.
func (c *ImageCache[K]) Get(key K) (image.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return e.img, true
}

// Contains reports whether key is cached without updating its recency.
func (c *ImageCache[K]) Contains(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Contains(key)
}

// Evict removes a single entry. Missing keys are ignored.
func (c *ImageCache[K]) Evict(key K) {
	c.mu.Lock()
	c.lru.Remove(key)
	c.mu.Unlock()
}

// Clear removes every entry.
func (c *ImageCache[K]) Clear() {
	c.mu.Lock()
	c.lru.Purge()
	c.totalBytes = 0
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *ImageCache[K]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Bytes returns the total cost of the cached entries.
func (c *ImageCache[K]) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalBytes
}

// ImageBytes estimates the memory held by an image's pixel buffers.
//
// Known concrete types report the length of their backing slices; any other
// implementation is costed at 4 bytes per pixel.
func ImageBytes(img image.Image) int64 {
	switch m := img.(type) {
	case *image.RGBA:
		return int64(len(m.Pix))
	case *image.NRGBA:
		return int64(len(m.Pix))
	case *image.RGBA64:
		return int64(len(m.Pix))
	case *image.NRGBA64:
		return int64(len(m.Pix))
	case *image.Gray:
		return int64(len(m.Pix))
	case *image.Gray16:
		return int64(len(m.Pix))
	case *image.Alpha:
		return int64(len(m.Pix))
	case *image.CMYK:
		return int64(len(m.Pix))
	case *image.Paletted:
		return int64(len(m.Pix)) + int64(len(m.Palette))*4
	case *image.YCbCr:
		return int64(len(m.Y) + len(m.Cb) + len(m.Cr))
	}
	b := img.Bounds()
	return int64(b.Dx()) * int64(b.Dy()) * 4
}
