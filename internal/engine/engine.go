// Package engine implements the update engine (C4): the single public
// mutation Set, which parses, rebuilds the dependency graph, detects
// cycles, and recomputes affected cells in topological order with full
// rollback on failure (spec §4.4).
package engine

import (
	"errors"
	"sync"

	"gridsheet/internal/exprtree"
	"gridsheet/internal/grid"
	"gridsheet/internal/parser"
)

var (
	ErrOutOfBounds   = errors.New("coordinate out of bounds")
	ErrCycleDetected = errors.New("cycle detected")
)

// ChangeSet maps a cell index to its post-update state, for every cell
// whose output changed as a consequence of one Set call.
type ChangeSet map[int]grid.Cell

// Engine owns one Arena. It is single-writer: Set holds the write lock for
// the whole transaction, while Get/GetIndex/Width/Height/Snapshot hold the
// read lock, so they may run concurrently with each other and never observe
// a Set in progress.
type Engine struct {
	mu    sync.RWMutex
	arena *grid.Arena
}

// New constructs an Engine over a fresh width x height grid.
func New(width, height int) *Engine {
	return &Engine{arena: grid.NewArena(width, height)}
}

func (e *Engine) Width() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.arena.Width()
}

func (e *Engine) Height() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.arena.Height()
}

// Get returns a read-only snapshot of the cell at (row, col).
func (e *Engine) Get(row, col int) (grid.Cell, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.arena.InBounds(row, col) {
		return grid.Cell{}, ErrOutOfBounds
	}
	return e.arena.Get(e.arena.Index(row, col)).Clone(), nil
}

// GetIndex returns the flat index for (row, col).
func (e *Engine) GetIndex(row, col int) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.arena.InBounds(row, col) {
		return 0, ErrOutOfBounds
	}
	return e.arena.Index(row, col), nil
}

// Snapshot returns every cell, in index order, for initial frontend
// hydration.
func (e *Engine) Snapshot() []grid.Cell {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.arena.Snapshot()
}

// Set implements the transactional algorithm of spec §4.4.
func (e *Engine) Set(row, col int, raw string) (ChangeSet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a := e.arena

	// 1. Bounds check.
	if !a.InBounds(row, col) {
		return nil, ErrOutOfBounds
	}
	// 2. Target resolution.
	cur := a.Index(row, col)

	// 3. Detach old: swap in a fresh default cell, remove cur from the
	// inbound sets of whatever it used to read.
	old := a.Replace(cur, grid.NewCell())
	for j := range old.Outbound {
		delete(a.Get(j).Inbound, cur)
	}

	// 4. Parse (never fails; errors become ErrorTree nodes).
	tree := parser.ParseCell(raw)

	// 5. Evaluate tentative output, resolving Coord leaves against the
	// arena's current Out values (dependencies are guaranteed evaluated
	// first by the topological pass below).
	lookup := func(r, c int) exprtree.Result {
		if !a.InBounds(r, c) {
			return exprtree.ErrorResult{Message: "coordinate out of bounds"}
		}
		return a.Get(a.Index(r, c)).Out
	}
	out := exprtree.Eval(tree, lookup)

	// 6. Collect new outbound references, dropping any that fall outside
	// the grid (a formula can syntactically name such a coordinate; it
	// just can never resolve to a real cell, so it cannot be a graph
	// edge — eval already turned it into an Error above).
	var newOutbound []int
	for _, c := range exprtree.CollectOutbound(tree) {
		if a.InBounds(c.Row, c.Col) {
			newOutbound = append(newOutbound, a.Index(c.Row, c.Col))
		}
	}

	// 7. Install the tentative cell. inbound is inherited from old: other
	// cells still reference this coordinate regardless of what it now
	// contains.
	newCell := &grid.Cell{
		Raw:      raw,
		Expr:     tree,
		Out:      out,
		Outbound: make(map[int]struct{}, len(newOutbound)),
		Inbound:  old.Inbound,
	}
	for _, j := range newOutbound {
		newCell.Outbound[j] = struct{}{}
	}
	a.Replace(cur, newCell)
	for _, j := range newOutbound {
		a.Get(j).Inbound[cur] = struct{}{}
	}

	// 8. Cycle check.
	if hasCycle(a, cur) {
		// Roll back: undo step 7, reinstate old at cur, re-add cur to the
		// inbound of everything old used to read.
		for _, j := range newOutbound {
			delete(a.Get(j).Inbound, cur)
		}
		a.Replace(cur, old)
		for j := range old.Outbound {
			a.Get(j).Inbound[cur] = struct{}{}
		}
		return nil, ErrCycleDetected
	}

	// 9. Recompute dependents in topological order. Capture pre-call
	// outputs first so the ChangeSet can report exactly what changed.
	affected := affectedSet(a, cur)
	preOut := make(map[int]exprtree.Result, len(affected))
	for idx := range affected {
		if idx == cur {
			preOut[idx] = old.Out
			continue
		}
		preOut[idx] = a.Get(idx).Out
	}

	order := topoOrder(a, affected)
	for _, idx := range order {
		cell := a.Get(idx)
		cell.Out = exprtree.Eval(cell.Expr, lookup)
	}

	// 10. Report every index whose output actually changed.
	changes := make(ChangeSet)
	for _, idx := range order {
		post := a.Get(idx).Out
		if !exprtree.Equal(preOut[idx], post) {
			changes[idx] = a.Get(idx).Clone()
		}
	}
	return changes, nil
}
