// Package library provides asset.Index implementations: an in-memory index
// for tests and embedding, and a filesystem index over a photo directory.
package library

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/ironsheep/image-picker-mcp/internal/asset"
)

// ErrNotAuthorized is returned by queries against a library that has not
// granted access.
var ErrNotAuthorized = errors.New("library not authorized")

// Ensure the indexes implement the port.
var (
	_ asset.Index = (*MemoryIndex)(nil)
	_ asset.Index = (*FSIndex)(nil)
)

// MemoryIndex is an in-memory asset.Index. It starts Authorized.
type MemoryIndex struct {
	mu      sync.RWMutex
	assets  []asset.Asset
	state   asset.AuthorizationState
	grant   asset.AuthorizationState
	queries int
}

// NewMemoryIndex creates an index holding assets.
func NewMemoryIndex(assets ...asset.Asset) *MemoryIndex {
	return &MemoryIndex{
		assets: slices.Clone(assets),
		state:  asset.Authorized,
		grant:  asset.Authorized,
	}
}

// SetAuthorization sets the current access state.
func (m *MemoryIndex) SetAuthorization(state asset.AuthorizationState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

// SetGrant sets the state that RequestAuthorization will move to.
func (m *MemoryIndex) SetGrant(state asset.AuthorizationState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grant = state
}

// Add inserts assets.
func (m *MemoryIndex) Add(assets ...asset.Asset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets = append(m.assets, assets...)
}

// Remove deletes the asset with id and reports whether it existed.
func (m *MemoryIndex) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.IndexFunc(m.assets, func(a asset.Asset) bool { return a.ID == id })
	if i < 0 {
		return false
	}
	m.assets = slices.Delete(m.assets, i, i+1)
	return true
}

// Len returns the number of assets regardless of filters.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.assets)
}

// Queries returns how many queries have run.
func (m *MemoryIndex) Queries() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queries
}

// Query implements asset.Index.
func (m *MemoryIndex) Query(ctx context.Context, filter asset.Filter, limit int) ([]asset.Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.queries++
	state := m.state
	all := slices.Clone(m.assets)
	m.mu.Unlock()

	if state != asset.Authorized {
		return nil, ErrNotAuthorized
	}
	return Select(all, filter, limit), nil
}

// Resolve implements asset.Index.
func (m *MemoryIndex) Resolve(ctx context.Context, ids []string) ([]asset.Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != asset.Authorized {
		return nil, ErrNotAuthorized
	}

	byID := make(map[string]asset.Asset, len(m.assets))
	for _, a := range m.assets {
		byID[a.ID] = a
	}
	out := make([]asset.Asset, 0, len(ids))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// AuthorizationState implements asset.Index.
func (m *MemoryIndex) AuthorizationState() asset.AuthorizationState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// RequestAuthorization moves to the configured grant state and invokes
// callback synchronously.
func (m *MemoryIndex) RequestAuthorization(callback func(asset.AuthorizationState)) {
	m.mu.Lock()
	m.state = m.grant
	state := m.state
	m.mu.Unlock()

	if callback != nil {
		callback(state)
	}
}

// Select filters assets, sorts them newest first, and truncates to limit.
// A non-positive limit returns every match.
func Select(assets []asset.Asset, filter asset.Filter, limit int) []asset.Asset {
	out := make([]asset.Asset, 0, len(assets))
	for _, a := range assets {
		if filter.Match(a) {
			out = append(out, a)
		}
	}
	SortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SortNewestFirst orders assets by descending creation time, breaking
// ties by ID so results are deterministic.
func SortNewestFirst(assets []asset.Asset) {
	slices.SortStableFunc(assets, func(a, b asset.Asset) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
