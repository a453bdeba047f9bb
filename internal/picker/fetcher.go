package picker

import (
	"context"
	"fmt"
	"sync"

	"github.com/ironsheep/image-picker-mcp/internal/asset"
	"github.com/ironsheep/image-picker-mcp/internal/logger"
)

// DefaultPageSize is the number of assets fetched per page.
const DefaultPageSize = 100

// PageFetcher maintains the fetched prefix of a library and grows it one
// page at a time.
//
// Every extension re-runs the query with a larger limit and replaces the
// whole asset slice, because the library may have changed since the last
// query. At most one query is in flight; requests that arrive meanwhile are
// dropped rather than queued, and the caller's next scroll event asks again.
type PageFetcher struct {
	index    asset.Index
	filter   asset.Filter
	pageSize int

	// onAuthorization receives the result of a deferred authorization
	// request. Set by Session.
	onAuthorization func(asset.AuthorizationState)

	mu            sync.Mutex
	assets        []asset.Asset
	limit         int
	exhausted     bool
	inFlight      bool
	authRequested bool
	closed        bool
}

// NewPageFetcher returns a fetcher over index. A non-positive pageSize
// selects DefaultPageSize.
func NewPageFetcher(index asset.Index, filter asset.Filter, pageSize int) *PageFetcher {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &PageFetcher{
		index:    index,
		filter:   filter,
		pageSize: pageSize,
	}
}

// EnsureLoaded extends the window by one page when pos lies within a page
// of the current limit, and returns the newly available range
// [oldWindow, newWindow). The first call loads the first page.
//
// It returns an empty range, and no error, when pos is well inside the
// window, when the library is exhausted, when another query is in flight,
// or when the library is not authorized. A NotDetermined library is asked
// for access once; the caller should call EnsureLoaded again after access
// is granted.
func (f *PageFetcher) EnsureLoaded(ctx context.Context, pos Position) (Range, error) {
	r, _, err := f.ensureLoaded(ctx, pos)
	return r, err
}

// ensureLoaded is EnsureLoaded that also reports which previously fetched
// indexes now hold a different asset.
func (f *PageFetcher) ensureLoaded(ctx context.Context, pos Position) (Range, []int, error) {
	if pos.Partition != Library {
		return Range{}, nil, nil
	}

	f.mu.Lock()
	if f.closed || f.inFlight {
		f.mu.Unlock()
		return Range{}, nil, nil
	}

	if state := f.index.AuthorizationState(); state != asset.Authorized {
		request := state == asset.NotDetermined && !f.authRequested
		if request {
			f.authRequested = true
		}
		f.mu.Unlock()

		if request {
			logger.Debug("requesting library authorization")
			f.index.RequestAuthorization(f.authorizationChanged)
		}
		return Range{}, nil, nil
	}

	limit, ok := f.nextLimit(pos)
	if !ok {
		f.mu.Unlock()
		return Range{}, nil, nil
	}
	f.inFlight = true
	f.mu.Unlock()

	return f.query(ctx, limit, false)
}

// Refresh re-runs the query with the current limit, picking up external
// changes to the library. It shares the in-flight slot with EnsureLoaded.
func (f *PageFetcher) Refresh(ctx context.Context) (Range, error) {
	r, _, err := f.refresh(ctx)
	return r, err
}

func (f *PageFetcher) refresh(ctx context.Context) (Range, []int, error) {
	f.mu.Lock()
	if f.closed || f.inFlight || f.limit == 0 {
		f.mu.Unlock()
		return Range{}, nil, nil
	}
	if f.index.AuthorizationState() != asset.Authorized {
		f.mu.Unlock()
		return Range{}, nil, nil
	}
	limit := f.limit
	f.inFlight = true
	f.mu.Unlock()

	return f.query(ctx, limit, true)
}

// query runs the query without holding the lock and installs the result.
// The caller has claimed the in-flight slot under the same lock that chose
// limit; query releases it. A page request for a window no larger than the
// current one is dropped.
func (f *PageFetcher) query(ctx context.Context, limit int, refresh bool) (Range, []int, error) {
	f.mu.Lock()
	if !refresh && limit <= f.limit {
		f.inFlight = false
		f.mu.Unlock()
		return Range{}, nil, nil
	}
	f.mu.Unlock()

	assets, err := f.index.Query(ctx, f.filter, limit)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = false

	if err != nil {
		return Range{}, nil, fmt.Errorf("query %d assets: %w", limit, err)
	}
	if f.closed {
		return Range{}, nil, nil
	}
	if len(assets) > limit {
		assets = assets[:limit]
	}

	old := len(f.assets)
	changed := Changed(f.assets, assets)
	f.assets = assets
	if limit > f.limit {
		f.limit = limit
	}
	f.exhausted = len(assets) < f.limit

	logger.Debug("asset window updated", "limit", f.limit, "window", len(assets), "changed", len(changed))

	if len(assets) <= old {
		return Range{Start: old, End: old}, changed, nil
	}
	return Range{Start: old, End: len(assets)}, changed, nil
}

// nextLimit decides whether pos warrants another page. Caller holds f.mu.
func (f *PageFetcher) nextLimit(pos Position) (int, bool) {
	if f.limit == 0 {
		return f.pageSize, true
	}
	if f.exhausted {
		return 0, false
	}
	if pos.Index < f.limit-f.pageSize {
		return 0, false
	}
	return f.limit + f.pageSize, true
}

func (f *PageFetcher) authorizationChanged(state asset.AuthorizationState) {
	logger.Debug("library authorization changed", "state", state.String())
	if f.onAuthorization != nil {
		f.onAuthorization(state)
	}
}

// Changed lists the indexes whose asset differs between two fetches of the
// same query: indexes in the shared prefix whose ID changed, followed by
// indexes that existed before but are now past the end.
func Changed(before, after []asset.Asset) []int {
	var out []int
	n := min(len(before), len(after))
	for i := 0; i < n; i++ {
		if before[i].ID != after[i].ID {
			out = append(out, i)
		}
	}
	for i := n; i < len(before); i++ {
		out = append(out, i)
	}
	return out
}

// indexByID maps each fetched asset ID to its index in the window.
func (f *PageFetcher) indexByID() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.assets))
	for i, a := range f.assets {
		out[a.ID] = i
	}
	return out
}

// Window returns the number of fetched assets.
func (f *PageFetcher) Window() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.assets)
}

// Limit returns the current query limit. It never decreases.
func (f *PageFetcher) Limit() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.limit
}

// Exhausted reports whether the last query returned fewer assets than its
// limit, meaning the whole library is in the window.
func (f *PageFetcher) Exhausted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exhausted
}

// Loaded reports whether at least one query has completed.
func (f *PageFetcher) Loaded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.limit > 0
}

// Asset returns the asset at index i of the window.
func (f *PageFetcher) Asset(i int) (asset.Asset, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.assets) {
		return asset.Asset{}, false
	}
	return f.assets[i], true
}

// Assets returns a copy of the window in r.
func (f *PageFetcher) Assets(r Range) []asset.Asset {
	f.mu.Lock()
	defer f.mu.Unlock()
	start := max(r.Start, 0)
	end := min(r.End, len(f.assets))
	if start >= end {
		return nil
	}
	out := make([]asset.Asset, end-start)
	copy(out, f.assets[start:end])
	return out
}

// Close discards the window. Queries that complete afterwards are ignored.
func (f *PageFetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.assets = nil
}
