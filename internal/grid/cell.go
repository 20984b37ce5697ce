package grid

import "gridsheet/internal/exprtree"

// Cell is one slot of the arena (spec §3).
type Cell struct {
	Raw      string
	Expr     exprtree.Tree
	Out      exprtree.Result
	Outbound map[int]struct{} // cells this cell reads
	Inbound  map[int]struct{} // cells that read this cell
}

// NewCell returns a default cell: unset expr, empty text output, empty
// edge sets. This is the state every cell starts in when a grid is
// constructed (spec "Lifecycle").
func NewCell() *Cell {
	return &Cell{
		Expr:     exprtree.Empty{},
		Out:      exprtree.TextResult{Value: ""},
		Outbound: make(map[int]struct{}),
		Inbound:  make(map[int]struct{}),
	}
}

// Clone returns a shallow copy safe to hand to callers as a read-only
// snapshot; the edge-set maps are copied so callers cannot mutate the
// arena's bookkeeping through the returned value.
func (c *Cell) Clone() Cell {
	out := Cell{Raw: c.Raw, Expr: c.Expr, Out: c.Out}
	out.Outbound = make(map[int]struct{}, len(c.Outbound))
	for k := range c.Outbound {
		out.Outbound[k] = struct{}{}
	}
	out.Inbound = make(map[int]struct{}, len(c.Inbound))
	for k := range c.Inbound {
		out.Inbound[k] = struct{}{}
	}
	return out
}
