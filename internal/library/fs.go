package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ironsheep/image-picker-mcp/internal/asset"
	"github.com/ironsheep/image-picker-mcp/internal/imaging"
	"github.com/ironsheep/image-picker-mcp/internal/logger"
)

// FSOptions configures an FSIndex.
type FSOptions struct {
	// AutoAuthorize checks access at construction instead of waiting for
	// RequestAuthorization.
	AutoAuthorize bool

	// Watch enables fsnotify so changes on disk invalidate the listing and
	// notify subscribers.
	Watch bool
}

// FSIndex is an asset.Index over a directory tree of photos and videos.
//
// Asset IDs are slash-separated paths relative to the root. Creation time
// is the file modification time. The directory listing is cached and
// rebuilt when the watcher reports a change, or on every query when
// watching is disabled.
type FSIndex struct {
	root string
	opts FSOptions

	mu      sync.RWMutex
	state   asset.AuthorizationState
	listing []asset.Asset
	stale   bool
	probes  map[string]probeEntry

	subMu  sync.Mutex
	subs   map[int]func()
	nextID int

	watcher *fsnotify.Watcher
	done    chan struct{}
}

type probeEntry struct {
	modTime time.Time
	width   int
	height  int
}

var videoExts = map[string]bool{
	".mp4": true, ".mov": true, ".m4v": true, ".avi": true, ".mkv": true,
}

var audioExts = map[string]bool{
	".mp3": true, ".m4a": true, ".wav": true, ".aac": true,
}

// NewFSIndex creates an index rooted at dir.
func NewFSIndex(dir string, opts FSOptions) (*FSIndex, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve library path: %w", err)
	}

	x := &FSIndex{
		root:   root,
		opts:   opts,
		state:  asset.NotDetermined,
		stale:  true,
		probes: make(map[string]probeEntry),
		subs:   make(map[int]func()),
		done:   make(chan struct{}),
	}

	if opts.AutoAuthorize {
		x.state = checkAccess(root)
	}

	if opts.Watch {
		if err := x.startWatcher(); err != nil {
			logger.Warn("library watch disabled", "root", root, "error", err)
		}
	}

	return x, nil
}

// Root returns the absolute library directory.
func (x *FSIndex) Root() string {
	return x.root
}

// checkAccess maps the directory's accessibility onto an authorization state.
func checkAccess(root string) asset.AuthorizationState {
	info, err := os.Stat(root)
	switch {
	case errors.Is(err, fs.ErrPermission):
		return asset.Denied
	case err != nil:
		return asset.Restricted
	case !info.IsDir():
		return asset.Restricted
	}

	f, err := os.Open(root)
	if err != nil {
		return asset.Denied
	}
	defer f.Close()
	if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return asset.Denied
	}
	return asset.Authorized
}

// AuthorizationState implements asset.Index.
func (x *FSIndex) AuthorizationState() asset.AuthorizationState {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.state
}

// RequestAuthorization checks access on a background goroutine and reports
// the result to callback.
func (x *FSIndex) RequestAuthorization(callback func(asset.AuthorizationState)) {
	go func() {
		state := checkAccess(x.root)

		x.mu.Lock()
		x.state = state
		x.stale = true
		x.mu.Unlock()

		logger.Info("library authorization", "root", x.root, "state", state.String())
		if callback != nil {
			callback(state)
		}
	}()
}

// Query implements asset.Index.
func (x *FSIndex) Query(ctx context.Context, filter asset.Filter, limit int) ([]asset.Asset, error) {
	listing, err := x.list(ctx)
	if err != nil {
		return nil, err
	}
	return Select(listing, filter, limit), nil
}

// Resolve implements asset.Index. Each ID is checked on disk so files
// removed since the last scan are omitted.
func (x *FSIndex) Resolve(ctx context.Context, ids []string) ([]asset.Asset, error) {
	if x.AuthorizationState() != asset.Authorized {
		return nil, ErrNotAuthorized
	}

	out := make([]asset.Asset, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path, ok := x.pathFor(id)
		if !ok {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if a, ok := x.describe(path, info); ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// pathFor maps an ID back to a path, rejecting IDs that escape the root.
func (x *FSIndex) pathFor(id string) (string, bool) {
	rel := filepath.FromSlash(id)
	if id == "" || filepath.IsAbs(rel) || !filepath.IsLocal(rel) {
		return "", false
	}
	return filepath.Join(x.root, rel), true
}

// list returns the cached listing, rescanning when stale.
func (x *FSIndex) list(ctx context.Context) ([]asset.Asset, error) {
	x.mu.RLock()
	state, stale, listing := x.state, x.stale, x.listing
	x.mu.RUnlock()

	if state != asset.Authorized {
		return nil, ErrNotAuthorized
	}
	if !stale && x.watcher != nil {
		return listing, nil
	}

	listing, err := x.scan(ctx)
	if err != nil {
		return nil, err
	}

	x.mu.Lock()
	x.listing = listing
	x.stale = false
	x.mu.Unlock()
	return listing, nil
}

// scan walks the tree, skipping hidden entries and unknown file types.
func (x *FSIndex) scan(ctx context.Context) ([]asset.Asset, error) {
	var out []asset.Asset
	err := filepath.WalkDir(x.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == x.root {
				return err
			}
			logger.Debug("skipping unreadable entry", "path", path, "error", err)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path != x.root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if a, ok := x.describe(path, info); ok {
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan library: %w", err)
	}

	logger.Debug("library scanned", "root", x.root, "assets", len(out))
	return out, nil
}

// describe builds the asset for a file, or reports false for files that
// are not media.
func (x *FSIndex) describe(path string, info fs.FileInfo) (asset.Asset, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	var mediaType asset.MediaType
	switch {
	case imaging.FormatFromExt(path) != "unknown":
		mediaType = asset.MediaImage
	case videoExts[ext]:
		mediaType = asset.MediaVideo
	case audioExts[ext]:
		mediaType = asset.MediaAudio
	default:
		return asset.Asset{}, false
	}

	rel, err := filepath.Rel(x.root, path)
	if err != nil {
		return asset.Asset{}, false
	}

	a := asset.Asset{
		ID:        filepath.ToSlash(rel),
		MediaType: mediaType,
		CreatedAt: info.ModTime(),
		Location:  path,
	}

	if mediaType == asset.MediaImage {
		a.PixelWidth, a.PixelHeight = x.dimensions(path, info.ModTime())
		if ext == ".gif" {
			a.Subtypes |= asset.SubtypeAnimated
		}
		if a.PixelHeight > 0 && a.PixelWidth >= 2*a.PixelHeight {
			a.Subtypes |= asset.SubtypePanorama
		}
	}
	if strings.Contains(strings.ToLower(filepath.Base(path)), "screenshot") {
		a.Subtypes |= asset.SubtypeScreenshot
	}
	return a, true
}

// dimensions probes an image header, memoised by path and mtime.
func (x *FSIndex) dimensions(path string, modTime time.Time) (int, int) {
	x.mu.RLock()
	p, ok := x.probes[path]
	x.mu.RUnlock()
	if ok && p.modTime.Equal(modTime) {
		return p.width, p.height
	}

	info, err := imaging.Probe(path)
	if err != nil {
		logger.Debug("probe failed", "path", path, "error", err)
		return 0, 0
	}

	x.mu.Lock()
	x.probes[path] = probeEntry{modTime: modTime, width: info.Width, height: info.Height}
	x.mu.Unlock()
	return info.Width, info.Height
}

// Subscribe registers fn to run after the watcher sees a change. It
// returns a function that removes the subscription.
func (x *FSIndex) Subscribe(fn func()) func() {
	x.subMu.Lock()
	defer x.subMu.Unlock()
	id := x.nextID
	x.nextID++
	x.subs[id] = fn
	return func() {
		x.subMu.Lock()
		delete(x.subs, id)
		x.subMu.Unlock()
	}
}

func (x *FSIndex) notify() {
	x.subMu.Lock()
	fns := make([]func(), 0, len(x.subs))
	for _, fn := range x.subs {
		fns = append(fns, fn)
	}
	x.subMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (x *FSIndex) startWatcher() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	err = filepath.WalkDir(x.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != x.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
	if err != nil {
		w.Close()
		return err
	}

	x.watcher = w
	go x.watch()
	return nil
}

func (x *FSIndex) watch() {
	for {
		select {
		case <-x.done:
			return
		case ev, ok := <-x.watcher.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = x.watcher.Add(ev.Name)
				}
			}

			x.mu.Lock()
			x.stale = true
			x.mu.Unlock()

			logger.Debug("library changed", "path", ev.Name, "op", ev.Op.String())
			x.notify()
		case err, ok := <-x.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("library watcher error", "error", err)
		}
	}
}

// Close stops the watcher.
func (x *FSIndex) Close() error {
	if x.watcher == nil {
		return nil
	}
	select {
	case <-x.done:
		return nil
	default:
		close(x.done)
	}
	return x.watcher.Close()
}
