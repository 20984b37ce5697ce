package store

import (
	"context"
	"testing"

	"gridsheet/internal/engine"
	"gridsheet/internal/exprtree"
)

func TestReplayAppliesCellsInRowMajorOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	if err := m.Save(ctx, 1, 0, 0, "10"); err != nil {
		t.Fatal(err)
	}
	if err := m.Save(ctx, 1, 0, 1, "=A1*2"); err != nil {
		t.Fatal(err)
	}

	e := engine.New(26, 100)
	if err := Replay(ctx, m, 1, e); err != nil {
		t.Fatalf("Replay: %v", err)
	}

	cell, err := e.Get(0, 1)
	if err != nil {
		t.Fatal(err)
	}
	n, ok := cell.Out.(exprtree.NumResult)
	if !ok || n.Value != 20 {
		t.Fatalf("B1 = %#v, want Num(20)", cell.Out)
	}
}

func TestReplaySkipsEmptyCellsOnLoad(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	if err := m.Save(ctx, 1, 0, 0, ""); err != nil {
		t.Fatal(err)
	}
	cells, err := m.Load(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(cells) != 0 {
		t.Fatalf("Load returned %d cells, want 0", len(cells))
	}
}
