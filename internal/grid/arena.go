// Package grid implements the cell arena (C3): a flat, index-addressed
// store of cells. Coordinates are bounded and dense, so the arena is a
// plain slice; edges between cells are sets of indices, never pointers —
// cycles can exist in the logical edge relation but never in the
// language's own ownership graph (spec §9).
package grid

import "fmt"

// Arena is a fixed-size W x H rectangle of cells.
type Arena struct {
	width, height int
	cells         []*Cell
}

// NewArena constructs a width x height arena with every cell at its
// default state.
func NewArena(width, height int) *Arena {
	a := &Arena{width: width, height: height, cells: make([]*Cell, width*height)}
	for i := range a.cells {
		a.cells[i] = NewCell()
	}
	return a
}

func (a *Arena) Width() int  { return a.width }
func (a *Arena) Height() int { return a.height }
func (a *Arena) Len() int    { return len(a.cells) }

// InBounds reports whether (row, col) addresses a cell of this arena.
func (a *Arena) InBounds(row, col int) bool {
	return row >= 0 && row < a.height && col >= 0 && col < a.width
}

// Index returns the flat index for (row, col). Callers must check
// InBounds first.
func (a *Arena) Index(row, col int) int {
	return row*a.width + col
}

// Coord is the inverse of Index.
func (a *Arena) Coord(index int) Coord {
	return CoordAt(index, a.width)
}

// Get returns the live cell at idx. The returned pointer is the arena's
// own storage: changes made through it (as the update engine makes to
// edge sets and outputs) change the arena. Use Cell.Clone for a copy that
// does not alias it.
func (a *Arena) Get(idx int) *Cell {
	return a.cells[idx]
}

// Replace atomically swaps the cell at idx for newCell, returning the
// cell that was there before.
func (a *Arena) Replace(idx int, newCell *Cell) *Cell {
	old := a.cells[idx]
	a.cells[idx] = newCell
	return old
}

// Snapshot returns a read-only copy of every cell, in index order, for
// initial frontend hydration.
func (a *Arena) Snapshot() []Cell {
	out := make([]Cell, len(a.cells))
	for i, c := range a.cells {
		out[i] = c.Clone()
	}
	return out
}

func (a *Arena) String() string {
	return fmt.Sprintf("Arena(%dx%d)", a.width, a.height)
}
