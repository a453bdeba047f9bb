package picker

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/ironsheep/image-picker-mcp/internal/asset"
	"github.com/ironsheep/image-picker-mcp/internal/imaging"
	"github.com/ironsheep/image-picker-mcp/internal/library"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// newestFirstAssets returns n images ordered so that index i of a query
// result has ID "a-i".
func newestFirstAssets(n int) []asset.Asset {
	out := make([]asset.Asset, n)
	for i := range out {
		out[i] = asset.Asset{
			ID:        fmt.Sprintf("a-%d", i),
			MediaType: asset.MediaImage,
			CreatedAt: epoch.Add(-time.Duration(i) * time.Minute),
		}
	}
	return out
}

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{1, 2, 3, 255})
		}
	}
	return img
}

// fakeDecoder returns a solid image sized to the target, or fails for the
// IDs listed in fail.
type fakeDecoder struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func newFakeDecoder(fail ...string) *fakeDecoder {
	d := &fakeDecoder{fail: make(map[string]bool)}
	for _, id := range fail {
		d.fail[id] = true
	}
	return d
}

func (d *fakeDecoder) Decode(ctx context.Context, a asset.Asset, q imaging.Quality, target image.Point) (image.Image, error) {
	d.mu.Lock()
	d.calls = append(d.calls, fmt.Sprintf("%s/%s", a.ID, q))
	fail := d.fail[a.ID]
	d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fail {
		return nil, errors.New("corrupt file")
	}
	w, h := target.X, target.Y
	if w <= 0 {
		w = 64
	}
	if h <= 0 {
		h = 64
	}
	return solid(w, h), nil
}

func (d *fakeDecoder) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// blockingIndex holds every query until release is closed.
type blockingIndex struct {
	*library.MemoryIndex
	started chan struct{}
	release chan struct{}
}

func newBlockingIndex(assets ...asset.Asset) *blockingIndex {
	return &blockingIndex{
		MemoryIndex: library.NewMemoryIndex(assets...),
		started:     make(chan struct{}, 16),
		release:     make(chan struct{}),
	}
}

func (b *blockingIndex) Query(ctx context.Context, f asset.Filter, limit int) ([]asset.Asset, error) {
	b.started <- struct{}{}
	<-b.release
	return b.MemoryIndex.Query(ctx, f, limit)
}

// failingResolveIndex fails every Resolve call.
type failingResolveIndex struct {
	*library.MemoryIndex
}

func (f failingResolveIndex) Resolve(context.Context, []string) ([]asset.Asset, error) {
	return nil, errors.New("library offline")
}
