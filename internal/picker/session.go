package picker

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/image-picker-mcp/internal/asset"
	"github.com/ironsheep/image-picker-mcp/internal/imaging"
	"github.com/ironsheep/image-picker-mcp/internal/logger"
)

// DefaultLimitMessage is shown when the selection limit is reached. A %d
// verb, if present, is replaced with the limit.
const DefaultLimitMessage = "You cannot select more than %d images. Please deselect another image before trying to select again."

// DefaultPreviewSize bounds grid previews.
var DefaultPreviewSize = image.Pt(256, 256)

// State is a session lifecycle state.
type State int

const (
	Idle State = iota
	Loading
	Active
	Finished
	Cancelled
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Active:
		return "active"
	case Finished:
		return "finished"
	case Cancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == Finished || s == Cancelled
}

// Decoder produces images for library assets.
type Decoder interface {
	Decode(ctx context.Context, a asset.Asset, q imaging.Quality, target image.Point) (image.Image, error)
}

// Options configures a Session.
type Options struct {
	// PageSize is the number of assets per page. Defaults to DefaultPageSize.
	PageSize int

	// MaxSelections caps the selection. Zero or negative is unlimited.
	MaxSelections int

	// Filter restricts which library assets are shown.
	Filter asset.Filter

	// WantImages makes Finish decode every selected asset at high quality
	// in addition to returning descriptors.
	WantImages bool

	// PreviewSize bounds previews decoded by LoadPreview.
	PreviewSize image.Point

	// ExportSize bounds images decoded by Finish. Zero is full resolution.
	ExportSize image.Point

	// CacheEntries and CacheBytes bound the preview cache.
	CacheEntries int
	CacheBytes   int64

	// PrefetchWorkers bounds concurrent decodes in PrefetchPreviews.
	PrefetchWorkers int

	// LimitMessage is the user-facing text for a rejected selection.
	LimitMessage string
}

// Callbacks receive session events. Exactly one of OnFinish and OnCancel
// fires, exactly once. Callbacks run without the session lock held.
type Callbacks struct {
	OnFinish func(Outcome)
	OnCancel func()

	// OnWindowChanged reports items that became available outside a direct
	// EnsureLoaded call, such as the reload after access is granted.
	OnWindowChanged func(Range)
}

// Item is one entry of a finished selection.
type Item struct {
	Position Position

	// Asset is nil for externally sourced items.
	Asset *asset.Asset

	// Image is set for external items, and for library items when the
	// session wants images and the decode succeeded.
	Image image.Image
}

// Outcome is the ordered result of Finish.
type Outcome struct {
	Items []Item
}

// Assets returns the library descriptors in selection order.
func (o Outcome) Assets() []asset.Asset {
	var out []asset.Asset
	for _, it := range o.Items {
		if it.Asset != nil {
			out = append(out, *it.Asset)
		}
	}
	return out
}

// Images returns the decoded images in selection order, skipping items
// without one.
func (o Outcome) Images() []image.Image {
	var out []image.Image
	for _, it := range o.Items {
		if it.Image != nil {
			out = append(out, it.Image)
		}
	}
	return out
}

// Session is one picker presentation, from first load to finish or cancel.
// It is created and owned by the caller; nothing is shared between sessions.
type Session struct {
	index   asset.Index
	decoder Decoder
	opts    Options
	cb      Callbacks
	fetcher *PageFetcher

	mu       sync.Mutex
	state    State
	tracker  *SelectionTracker
	captured []image.Image
}

// New creates an Idle session over index.
func New(index asset.Index, decoder Decoder, opts Options, cb Callbacks) *Session {
	if opts.PreviewSize == (image.Point{}) {
		opts.PreviewSize = DefaultPreviewSize
	}
	if opts.PrefetchWorkers <= 0 {
		opts.PrefetchWorkers = 4
	}
	if opts.LimitMessage == "" {
		opts.LimitMessage = DefaultLimitMessage
	}

	s := &Session{
		index:   index,
		decoder: decoder,
		opts:    opts,
		cb:      cb,
		fetcher: NewPageFetcher(index, opts.Filter, opts.PageSize),
		tracker: NewSelectionTracker(
			MaxSelections(opts.MaxSelections),
			imaging.NewImageCache[Position](opts.CacheEntries, opts.CacheBytes),
		),
	}
	s.fetcher.onAuthorization = s.authorizationChanged
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Authorization returns the library's current access state.
func (s *Session) Authorization() asset.AuthorizationState {
	return s.index.AuthorizationState()
}

// Window returns the number of library items currently loaded.
func (s *Session) Window() int {
	return s.fetcher.Window()
}

// Exhausted reports whether the whole library is loaded.
func (s *Session) Exhausted() bool {
	return s.fetcher.Exhausted()
}

// Asset returns the library asset at index i of the window.
func (s *Session) Asset(i int) (asset.Asset, bool) {
	return s.fetcher.Asset(i)
}

// Assets returns the library assets in r.
func (s *Session) Assets(r Range) []asset.Asset {
	return s.fetcher.Assets(r)
}

// MaxSelections returns the configured limit (zero or negative is unlimited).
func (s *Session) MaxSelections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.MaxSelections
}

// Configure sets the maximum number of selections. Zero or negative means
// unlimited. Lowering the limit never drops existing selections.
func (s *Session) Configure(maxSelections int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return ErrSessionClosed
	}
	s.opts.MaxSelections = maxSelections
	s.tracker.SetPolicy(MaxSelections(maxSelections))
	return nil
}

// EnsureLoaded grows the library window if pos is near its end and returns
// the newly available range. See PageFetcher.EnsureLoaded.
func (s *Session) EnsureLoaded(ctx context.Context, pos Position) (Range, error) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return Range{}, ErrSessionClosed
	}
	if s.state == Idle {
		s.state = Loading
	}
	s.mu.Unlock()

	r, changed, err := s.fetcher.ensureLoaded(ctx, pos)
	if err != nil {
		return Range{}, err
	}
	s.reconcile(r, changed)
	return r, nil
}

// Refresh re-runs the current query to pick up external library changes.
// Previews for positions whose asset changed are dropped.
func (s *Session) Refresh(ctx context.Context) (Range, error) {
	if s.State().Terminal() {
		return Range{}, ErrSessionClosed
	}
	r, changed, err := s.fetcher.refresh(ctx)
	if err != nil {
		return Range{}, err
	}
	s.reconcile(r, changed)
	return r, nil
}

// reconcile updates state after a query completed. Selections follow their
// asset to its new index.
func (s *Session) reconcile(r Range, changed []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	if s.state != Active && s.fetcher.Loaded() {
		s.state = Active
	}
	for _, i := range changed {
		s.tracker.Invalidate(LibraryPosition(i))
	}
	if len(changed) > 0 || !r.Empty() {
		ids := s.fetcher.indexByID()
		s.tracker.relocate(func(id string) (int, bool) {
			i, ok := ids[id]
			return i, ok
		})
	}
}

// authorizationChanged re-runs the first load once access is granted.
func (s *Session) authorizationChanged(state asset.AuthorizationState) {
	if state != asset.Authorized {
		logger.Info("library access not granted", "state", state.String())
		return
	}

	r, err := s.EnsureLoaded(context.Background(), LibraryPosition(0))
	if err != nil {
		if !errors.Is(err, ErrSessionClosed) {
			logger.Warn("reload after authorization failed", "error", err)
		}
		return
	}
	if !r.Empty() && s.cb.OnWindowChanged != nil {
		s.cb.OnWindowChanged(r)
	}
}

// Preview returns the cached preview for pos without decoding.
func (s *Session) Preview(pos Position) (image.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Preview(pos)
}

// LoadPreview returns the preview for pos, decoding it from the library if
// it is not cached. A decode whose position maps to a different asset by
// the time it completes is returned but not cached.
func (s *Session) LoadPreview(ctx context.Context, pos Position) (image.Image, error) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if img, ok := s.tracker.Preview(pos); ok {
		s.mu.Unlock()
		return img, nil
	}
	s.mu.Unlock()

	if pos.Partition == External {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPosition, pos)
	}

	a, ok := s.fetcher.Asset(pos.Index)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOutOfWindow, pos)
	}

	img, err := s.decoder.Decode(ctx, a, imaging.QualityFast, s.opts.PreviewSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecodeFailed, a.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return img, nil
	}
	if current, ok := s.fetcher.Asset(pos.Index); !ok || current.ID != a.ID {
		logger.Debug("discarding stale preview", "position", pos.String(), "asset", a.ID)
		return img, nil
	}
	s.tracker.AttachPreview(pos, img)
	return img, nil
}

// PrefetchPreviews decodes previews for every position in r using a
// bounded number of workers. Individual decode failures are logged and
// skipped; only context cancellation is returned.
func (s *Session) PrefetchPreviews(ctx context.Context, r Range) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.PrefetchWorkers)

	for _, pos := range r.Positions() {
		g.Go(func() error {
			if _, err := s.LoadPreview(gctx, pos); err != nil {
				if errors.Is(err, ErrSessionClosed) {
					return err
				}
				logger.Debug("preview prefetch skipped", "position", pos.String(), "error", err)
			}
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, ErrSessionClosed) {
		return err
	}
	return nil
}

// RequestSelect tries to select pos. It returns nil when accepted and a
// *RejectedError when there is no preview yet or the limit is reached.
// Other errors report misuse: a closed or not yet active session, or a
// position that does not exist.
func (s *Session) RequestSelect(pos Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state.Terminal():
		return ErrSessionClosed
	case s.state != Active:
		return ErrNotActive
	}

	var assetID string
	switch pos.Partition {
	case Library:
		a, ok := s.fetcher.Asset(pos.Index)
		if !ok {
			return fmt.Errorf("%w: %s", ErrOutOfWindow, pos)
		}
		assetID = a.ID
	case External:
		if pos.Index < 0 || pos.Index >= len(s.captured) {
			return fmt.Errorf("%w: %s", ErrUnknownPosition, pos)
		}
	}

	if pos.Partition == Library && s.tracker.bound(assetID) {
		return nil
	}
	if pos.Partition == External && s.tracker.IsSelected(pos) {
		return nil
	}

	_, hasPreview := s.tracker.Preview(pos)
	if !hasPreview {
		return &RejectedError{Position: pos, Reason: RejectNoPreview}
	}
	if !s.tracker.Admits(pos) {
		return &RejectedError{
			Position: pos,
			Reason:   RejectLimitExceeded,
			Message:  s.limitMessage(),
		}
	}

	s.tracker.add(pos, assetID)
	return nil
}

func (s *Session) limitMessage() string {
	if strings.Contains(s.opts.LimitMessage, "%d") {
		return fmt.Sprintf(s.opts.LimitMessage, s.opts.MaxSelections)
	}
	return s.opts.LimitMessage
}

// Deselect removes the asset at pos from the selection. Unselected
// positions are ignored.
func (s *Session) Deselect(pos Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return ErrSessionClosed
	}
	if a, ok := s.libraryAsset(pos); ok {
		s.tracker.deselectAsset(a.ID)
		return nil
	}
	s.tracker.Deselect(pos)
	return nil
}

// IsSelected reports whether the asset at pos is selected.
func (s *Session) IsSelected(pos Position) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.libraryAsset(pos); ok {
		return s.tracker.bound(a.ID)
	}
	return s.tracker.IsSelected(pos)
}

func (s *Session) libraryAsset(pos Position) (asset.Asset, bool) {
	if pos.Partition != Library {
		return asset.Asset{}, false
	}
	return s.fetcher.Asset(pos.Index)
}

// Selection returns the selected positions in selection order.
func (s *Session) Selection() []Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Selected()
}

// AddCaptured registers an externally sourced image, such as a camera
// capture, and returns its position. The image doubles as its preview. An
// Idle or Loading session becomes Active.
func (s *Session) AddCaptured(img image.Image) (Position, error) {
	if img == nil {
		return Position{}, fmt.Errorf("%w: nil captured image", ErrDecodeFailed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return Position{}, ErrSessionClosed
	}

	pos := ExternalPosition(len(s.captured))
	s.captured = append(s.captured, img)
	s.tracker.AttachPreview(pos, img)
	s.state = Active
	return pos, nil
}

// Finish resolves the selection and fires OnFinish.
//
// Library selections resolve to the asset they were made on, reported at
// the index it was last seen at; assets removed from the library since then
// are dropped. When the session wants images, each resolved asset is
// decoded at high quality in selection order and failures are skipped. An empty selection cancels instead.
func (s *Session) Finish(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return Outcome{}, ErrSessionClosed
	}

	selected := s.tracker.snapshot()
	if len(selected) == 0 {
		s.closeLocked(Cancelled)
		s.mu.Unlock()
		logger.Debug("finish with empty selection; cancelling")
		s.fireCancel()
		return Outcome{}, nil
	}

	captured := s.captured
	s.state = Finished
	s.mu.Unlock()

	resolved := s.resolve(ctx, selected)

	outcome := Outcome{Items: make([]Item, 0, len(selected))}
	for _, sel := range selected {
		item := Item{Position: sel.pos}

		if sel.pos.Partition == External {
			item.Image = captured[sel.pos.Index]
			outcome.Items = append(outcome.Items, item)
			continue
		}

		a, ok := resolved[sel.assetID]
		if !ok {
			logger.Debug("dropping selection", "position", sel.pos.String(), "error", ErrAssetMissing)
			continue
		}
		item.Asset = &a

		if s.opts.WantImages {
			img, err := s.decoder.Decode(ctx, a, imaging.QualityHigh, s.opts.ExportSize)
			if err != nil {
				logger.Warn("skipping image", "asset", a.ID, "error", fmt.Errorf("%w: %v", ErrDecodeFailed, err))
			} else {
				item.Image = img
			}
		}
		outcome.Items = append(outcome.Items, item)
	}

	s.mu.Lock()
	s.closeLocked(Finished)
	s.mu.Unlock()

	if s.cb.OnFinish != nil {
		s.cb.OnFinish(outcome)
	}
	return outcome, nil
}

// resolve looks up the selected assets in the library. If the library
// cannot be asked, it falls back to the fetched window, keeping positions
// whose asset is unchanged.
func (s *Session) resolve(ctx context.Context, selected []selection) map[string]asset.Asset {
	var order []string
	for _, sel := range selected {
		if sel.assetID != "" {
			order = append(order, sel.assetID)
		}
	}

	out := make(map[string]asset.Asset, len(order))
	if len(order) == 0 {
		return out
	}

	assets, err := s.index.Resolve(ctx, order)
	if err == nil {
		for _, a := range assets {
			out[a.ID] = a
		}
		return out
	}

	logger.Warn("resolving selection failed; using loaded window", "error", err)
	for _, sel := range selected {
		if sel.assetID == "" {
			continue
		}
		if a, ok := s.fetcher.Asset(sel.pos.Index); ok && a.ID == sel.assetID {
			out[a.ID] = a
		}
	}
	return out
}

// Cancel discards the selection and the window and fires OnCancel.
func (s *Session) Cancel() error {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.closeLocked(Cancelled)
	s.mu.Unlock()

	s.fireCancel()
	return nil
}

func (s *Session) fireCancel() {
	if s.cb.OnCancel != nil {
		s.cb.OnCancel()
	}
}

// closeLocked moves to a terminal state and releases session data.
// Caller holds s.mu.
func (s *Session) closeLocked(final State) {
	s.state = final
	s.tracker.Reset()
	s.captured = nil
	s.fetcher.Close()
}
