package picker

import (
	"image"
	"slices"

	"github.com/ironsheep/image-picker-mcp/internal/imaging"
)

// SelectionPolicy decides whether candidate may join the current selection.
type SelectionPolicy interface {
	Admit(selected []Position, candidate Position) bool
}

// MaxSelections admits candidates while fewer than N positions are
// selected. Zero or negative means unlimited. Positions from every
// partition count toward the limit.
type MaxSelections int

// Admit implements SelectionPolicy.
func (m MaxSelections) Admit(selected []Position, _ Position) bool {
	return m <= 0 || len(selected) < int(m)
}

// selection is one selected item. Library selections made through a
// Session carry the ID of the asset they were made on; pos follows that
// asset when the window is re-fetched. An entry whose asset is no longer
// in the window is unplaced: it still counts and still finishes, but no
// position reports it as selected.
type selection struct {
	pos     Position
	assetID string
	placed  bool
}

// SelectionTracker records the ordered selection and the previews shown
// for each position.
//
// Library previews live in a bounded ImageCache and may disappear at any
// time; callers decode them again from the library. External previews are
// the only copy of a captured image and are kept until Reset.
//
// SelectionTracker is not safe for concurrent use on its own; Session
// serialises access. The preview cache itself tolerates concurrent writers.
type SelectionTracker struct {
	policy   SelectionPolicy
	entries  []selection
	previews *imaging.ImageCache[Position]
	external map[Position]image.Image
}

// NewSelectionTracker returns an empty tracker. A nil policy admits
// everything.
func NewSelectionTracker(policy SelectionPolicy, cache *imaging.ImageCache[Position]) *SelectionTracker {
	if cache == nil {
		cache = imaging.NewImageCache[Position](0, 0)
	}
	return &SelectionTracker{
		policy:   policy,
		previews: cache,
		external: make(map[Position]image.Image),
	}
}

// SetPolicy replaces the selection policy. Existing selections are kept
// even if they exceed a new, smaller limit.
func (t *SelectionTracker) SetPolicy(p SelectionPolicy) {
	t.policy = p
}

// Admits reports whether the policy would accept pos now.
func (t *SelectionTracker) Admits(pos Position) bool {
	if t.policy == nil {
		return true
	}
	counted := make([]Position, len(t.entries))
	for i, e := range t.entries {
		counted[i] = e.pos
	}
	return t.policy.Admit(counted, pos)
}

// TrySelect appends pos to the selection. It returns false when no preview
// is available or the policy refuses; selecting an already selected
// position returns true and changes nothing.
func (t *SelectionTracker) TrySelect(pos Position, previewAvailable bool) bool {
	if !previewAvailable {
		return false
	}
	if t.IsSelected(pos) {
		return true
	}
	if !t.Admits(pos) {
		return false
	}
	t.add(pos, "")
	return true
}

// add appends a selection for pos bound to assetID. An entry still placed
// at pos refers to an asset that has since moved, so it is unplaced until
// the next relocate.
func (t *SelectionTracker) add(pos Position, assetID string) {
	if i := t.placedAt(pos); i >= 0 {
		t.entries[i].placed = false
	}
	t.entries = append(t.entries, selection{pos: pos, assetID: assetID, placed: true})
}

// bound reports whether a selection is bound to assetID.
func (t *SelectionTracker) bound(assetID string) bool {
	return assetID != "" && t.indexOfAsset(assetID) >= 0
}

// relocate moves every bound library selection to the index its asset now
// has, as reported by indexOf. Selections whose asset is not found are
// unplaced.
func (t *SelectionTracker) relocate(indexOf func(assetID string) (int, bool)) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.pos.Partition != Library || e.assetID == "" {
			continue
		}
		if idx, ok := indexOf(e.assetID); ok {
			e.pos = LibraryPosition(idx)
			e.placed = true
		} else {
			e.placed = false
		}
	}
}

// Deselect removes the selection shown at pos. Absent positions are ignored.
func (t *SelectionTracker) Deselect(pos Position) {
	t.remove(t.placedAt(pos))
}

// deselectAsset removes the selection bound to assetID, placed or not.
func (t *SelectionTracker) deselectAsset(assetID string) {
	t.remove(t.indexOfAsset(assetID))
}

func (t *SelectionTracker) remove(i int) {
	if i < 0 {
		return
	}
	t.entries = slices.Delete(t.entries, i, i+1)
}

func (t *SelectionTracker) placedAt(pos Position) int {
	return slices.IndexFunc(t.entries, func(e selection) bool {
		return e.placed && e.pos == pos
	})
}

func (t *SelectionTracker) indexOfAsset(assetID string) int {
	return slices.IndexFunc(t.entries, func(e selection) bool {
		return e.assetID == assetID
	})
}

// IsSelected reports whether pos is selected.
func (t *SelectionTracker) IsSelected(pos Position) bool {
	return t.placedAt(pos) >= 0
}

// Selected returns the placed selections in selection order.
func (t *SelectionTracker) Selected() []Position {
	var out []Position
	for _, e := range t.entries {
		if e.placed {
			out = append(out, e.pos)
		}
	}
	return out
}

// snapshot returns a copy of every selection, placed or not.
func (t *SelectionTracker) snapshot() []selection {
	return slices.Clone(t.entries)
}

// Len returns the number of selections, including unplaced ones.
func (t *SelectionTracker) Len() int {
	return len(t.entries)
}

// AttachPreview stores the decoded preview for pos.
func (t *SelectionTracker) AttachPreview(pos Position, img image.Image) {
	if img == nil {
		return
	}
	if pos.Partition == External {
		t.external[pos] = img
		return
	}
	t.previews.Add(pos, img)
}

// Preview returns the preview for pos, if one is held. A library preview
// attached earlier may have been evicted.
func (t *SelectionTracker) Preview(pos Position) (image.Image, bool) {
	if pos.Partition == External {
		img, ok := t.external[pos]
		return img, ok
	}
	return t.previews.Get(pos)
}

// Invalidate drops cached library previews, typically because the asset at
// those positions changed after a refresh.
func (t *SelectionTracker) Invalidate(positions ...Position) {
	for _, pos := range positions {
		if pos.Partition == Library {
			t.previews.Evict(pos)
		}
	}
}

// Reset empties the selection and every preview.
func (t *SelectionTracker) Reset() {
	t.entries = nil
	clear(t.external)
	t.previews.Clear()
}
