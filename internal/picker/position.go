package picker

import "fmt"

// Partition separates library-backed positions from externally sourced ones.
type Partition int

const (
	Library Partition = iota
	External
)

func (p Partition) String() string {
	if p == External {
		return "external"
	}
	return "library"
}

// Position identifies a selectable slot. Two positions are equal when both
// fields match, so Position is usable as a map key.
type Position struct {
	Index     int
	Partition Partition
}

// LibraryPosition returns the library position for index i.
func LibraryPosition(i int) Position {
	return Position{Index: i, Partition: Library}
}

// ExternalPosition returns the external position for index i.
func ExternalPosition(i int) Position {
	return Position{Index: i, Partition: External}
}

func (p Position) String() string {
	return fmt.Sprintf("%s:%d", p.Partition, p.Index)
}

// Range is a half-open interval [Start, End) of library indexes.
type Range struct {
	Start int
	End   int
}

// Len returns the number of indexes in r.
func (r Range) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Empty reports whether r contains no indexes.
func (r Range) Empty() bool {
	return r.Len() == 0
}

// Positions expands r into library positions.
func (r Range) Positions() []Position {
	out := make([]Position, 0, r.Len())
	for i := r.Start; i < r.End; i++ {
		out = append(out, LibraryPosition(i))
	}
	return out
}
