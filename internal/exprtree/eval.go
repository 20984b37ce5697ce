package exprtree

// Lookup resolves the current output of another cell by coordinate. The
// engine guarantees, by evaluating in topological order, that whatever
// Lookup returns here already reflects this update's effects.
type Lookup func(row, col int) Result

// Eval is a pure function of the tree and the values Lookup currently
// returns for referenced coordinates.
func Eval(t Tree, lookup Lookup) Result {
	switch t := t.(type) {
	case Empty:
		return TextResult{Value: ""}
	case ErrorTree:
		return ErrorResult{Message: t.Message}
	case Leaf:
		return evalValue(t.Value, lookup)
	case UnaryTree:
		return applyBinary(Mul, NumResult{Value: -1}, Eval(t.Child, lookup))
	case BinaryTree:
		return applyBinary(t.Op, Eval(t.Left, lookup), Eval(t.Right, lookup))
	default:
		return errorf("unreachable: unknown tree node %T", t)
	}
}

func evalValue(v ValueNode, lookup Lookup) Result {
	switch v := v.(type) {
	case NumNode:
		return NumResult{Value: v.Value}
	case TextNode:
		return TextResult{Value: v.Value}
	case CoordNode:
		return lookup(v.Row, v.Col)
	default:
		return errorf("unreachable: unknown value node %T", v)
	}
}

// applyBinary implements the operator semantics table in spec §4.2. Error
// operands propagate; they do not short-circuit evaluation of the other
// side (the tree is finite and small, so there is no reason to skip it).
func applyBinary(op Op, l, r Result) Result {
	if le, ok := l.(ErrorResult); ok {
		return le
	}
	if re, ok := r.(ErrorResult); ok {
		return re
	}

	ln, lIsNum := l.(NumResult)
	rn, rIsNum := r.(NumResult)
	lt, lIsText := l.(TextResult)
	rt, rIsText := r.(TextResult)

	switch op {
	case Add:
		switch {
		case lIsNum && rIsNum:
			return NumResult{Value: ln.Value + rn.Value}
		case lIsText && rIsText:
			return TextResult{Value: lt.Value + rt.Value}
		default:
			return errorf("can't add %s with %s", l.kind(), r.kind())
		}
	case Sub:
		if lIsNum && rIsNum {
			return NumResult{Value: ln.Value - rn.Value}
		}
		return errorf("can't subtract %s with %s", l.kind(), r.kind())
	case Mul:
		if lIsNum && rIsNum {
			return NumResult{Value: ln.Value * rn.Value}
		}
		return errorf("can't multiply %s with %s", l.kind(), r.kind())
	case Div:
		if lIsNum && rIsNum {
			return NumResult{Value: ln.Value / rn.Value} // IEEE-754: may yield ±Inf or NaN, not an error
		}
		return errorf("can't divide %s with %s", l.kind(), r.kind())
	default:
		return errorf("unreachable: unknown operator %v", op)
	}
}

// CollectOutbound walks the tree and returns exactly the coordinates that
// influence its value — the mechanical side of INV-2. Duplicate references
// are deduplicated.
func CollectOutbound(t Tree) []CoordNode {
	seen := make(map[CoordNode]bool)
	var out []CoordNode
	var walk func(Tree)
	walk = func(t Tree) {
		switch t := t.(type) {
		case Empty, ErrorTree:
			// no references
		case Leaf:
			if c, ok := t.Value.(CoordNode); ok && !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		case UnaryTree:
			walk(t.Child)
		case BinaryTree:
			walk(t.Left)
			walk(t.Right)
		}
	}
	walk(t)
	return out
}
