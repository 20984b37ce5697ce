package engine

import (
	"testing"

	"gridsheet/internal/exprtree"
)

func mustSet(t *testing.T, e *Engine, row, col int, raw string) ChangeSet {
	t.Helper()
	cs, err := e.Set(row, col, raw)
	if err != nil {
		t.Fatalf("Set(%d,%d,%q) failed: %v", row, col, raw, err)
	}
	return cs
}

func wantNum(t *testing.T, e *Engine, row, col int, want float64) {
	t.Helper()
	cell, err := e.Get(row, col)
	if err != nil {
		t.Fatalf("Get(%d,%d): %v", row, col, err)
	}
	n, ok := cell.Out.(exprtree.NumResult)
	if !ok || n.Value != want {
		t.Fatalf("Get(%d,%d) = %#v, want Num(%v)", row, col, cell.Out, want)
	}
}

func TestArithmeticLiteral(t *testing.T) {
	e := New(26, 100)
	mustSet(t, e, 0, 0, "=1+2*10-2")
	wantNum(t, e, 0, 0, 19)
}

func TestUnaryMinusAndPrecedence(t *testing.T) {
	e := New(26, 100)
	mustSet(t, e, 0, 0, "=1+-(1+2*10)")
	wantNum(t, e, 0, 0, -20)
}

func TestLeftAssociativeSubtraction(t *testing.T) {
	e := New(26, 100)
	mustSet(t, e, 0, 0, "=1-2-3")
	wantNum(t, e, 0, 0, -4)
}

func TestArithmeticWithRefs(t *testing.T) {
	e := New(26, 100)
	mustSet(t, e, 0, 0, "1")  // A1
	mustSet(t, e, 0, 1, "2")  // B1
	mustSet(t, e, 1, 0, "3")  // A2
	mustSet(t, e, 1, 1, "4")  // B2
	mustSet(t, e, 2, 2, "=A1+A2+B1+B2")
	wantNum(t, e, 2, 2, 10)
}

func TestCycleDetectedAndRolledBack(t *testing.T) {
	e := New(26, 100)
	mustSet(t, e, 0, 0, "=A2") // A1 = A2
	mustSet(t, e, 1, 0, "=B1") // A2 = B1

	before := e.Snapshot()
	_, err := e.Set(0, 1, "=A1") // B1 = A1 would close the cycle
	if err != ErrCycleDetected {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
	after := e.Snapshot()
	for i := range before {
		if before[i].Raw != after[i].Raw {
			t.Fatalf("cell %d raw changed after rollback: %q -> %q", i, before[i].Raw, after[i].Raw)
		}
	}
}

func TestSelfReferenceIsACycle(t *testing.T) {
	e := New(26, 100)
	_, err := e.Set(0, 0, "=A1")
	if err != ErrCycleDetected {
		t.Fatalf("expected ErrCycleDetected for self-reference, got %v", err)
	}
}

func TestCascadingUpdateReportsExactChangeSet(t *testing.T) {
	e := New(26, 100)
	mustSet(t, e, 0, 0, "10")      // A1
	mustSet(t, e, 0, 1, "=A1*2")   // B1
	mustSet(t, e, 1, 0, "=A1*3")   // A2
	mustSet(t, e, 1, 1, "=A2*4")   // B2

	cs := mustSet(t, e, 0, 0, "1") // A1 = 1

	wantNum(t, e, 0, 0, 1)
	wantNum(t, e, 0, 1, 2)
	wantNum(t, e, 1, 0, 3)
	wantNum(t, e, 1, 1, 12)

	a1, _ := e.GetIndex(0, 0)
	b1, _ := e.GetIndex(0, 1)
	a2, _ := e.GetIndex(1, 0)
	b2, _ := e.GetIndex(1, 1)
	want := map[int]bool{a1: true, b1: true, a2: true, b2: true}
	if len(cs) != len(want) {
		t.Fatalf("ChangeSet has %d entries, want %d: %v", len(cs), len(want), cs)
	}
	for idx := range want {
		if _, ok := cs[idx]; !ok {
			t.Fatalf("ChangeSet missing index %d", idx)
		}
	}
}

func TestTextConcatenationThenTypeMismatch(t *testing.T) {
	e := New(26, 100)
	mustSet(t, e, 0, 0, "a")     // A1
	mustSet(t, e, 0, 1, "=A1")   // B1
	cell, _ := e.Get(0, 1)
	if tr, ok := cell.Out.(exprtree.TextResult); !ok || tr.Value != "a" {
		t.Fatalf("B1 = %#v, want Text(a)", cell.Out)
	}

	mustSet(t, e, 0, 1, "=A1+1")
	cell, _ = e.Get(0, 1)
	if _, ok := cell.Out.(exprtree.ErrorResult); !ok {
		t.Fatalf("B1 = %#v, want Error", cell.Out)
	}
}

func TestDiamondDependencyEvaluatesXAfterBothBranches(t *testing.T) {
	e := New(26, 100)
	mustSet(t, e, 0, 0, "1")        // W = A1
	mustSet(t, e, 0, 1, "=A1*2")    // Y = B1
	mustSet(t, e, 0, 2, "=A1*3")    // Z = C1
	mustSet(t, e, 0, 3, "=B1+C1")   // X = D1

	mustSet(t, e, 0, 0, "10") // update W
	wantNum(t, e, 0, 1, 20)
	wantNum(t, e, 0, 2, 30)
	wantNum(t, e, 0, 3, 50)
}

func TestEmptyStringProducesEmptyTextOutput(t *testing.T) {
	e := New(26, 100)
	mustSet(t, e, 0, 0, "")
	cell, _ := e.Get(0, 0)
	if tr, ok := cell.Out.(exprtree.TextResult); !ok || tr.Value != "" {
		t.Fatalf("empty cell = %#v, want Text(\"\")", cell.Out)
	}
}

func TestOutOfBoundsRejected(t *testing.T) {
	e := New(26, 100)
	if _, err := e.Set(100, 0, "1"); err != ErrOutOfBounds {
		t.Fatalf("expected ErrOutOfBounds for row=H, got %v", err)
	}
	if _, err := e.Set(0, 26, "1"); err != ErrOutOfBounds {
		t.Fatalf("expected ErrOutOfBounds for col=W, got %v", err)
	}
	if _, err := e.Set(99, 25, "1"); err != nil {
		t.Fatalf("expected (H-1,W-1) to be accepted, got %v", err)
	}
}

func TestRerunningSetIsANoOp(t *testing.T) {
	e := New(26, 100)
	mustSet(t, e, 0, 0, "1")
	mustSet(t, e, 0, 1, "=A1+1")

	cs, err := e.Set(0, 1, "=A1+1")
	if err != nil {
		t.Fatalf("re-running Set failed: %v", err)
	}
	if len(cs) != 0 {
		t.Fatalf("re-running an identical Set should be a no-op, got ChangeSet %v", cs)
	}
}

func TestDivisionByZeroIsNotAnError(t *testing.T) {
	e := New(26, 100)
	mustSet(t, e, 0, 0, "=1/0")
	cell, _ := e.Get(0, 0)
	n, ok := cell.Out.(exprtree.NumResult)
	if !ok {
		t.Fatalf("1/0 = %#v, want Num(+Inf)", cell.Out)
	}
	if n.Value <= 0 {
		t.Fatalf("1/0 = %v, want +Inf", n.Value)
	}
}
