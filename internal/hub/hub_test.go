package hub

import (
	"testing"

	"gridsheet/internal/engine"
)

func TestTryLockIsFirstWriterWins(t *testing.T) {
	e := engine.New(26, 100)
	h := New(e, nil)

	if !h.TryLock(0, "alice") {
		t.Fatal("alice should acquire an unheld lock")
	}
	if h.TryLock(0, "bob") {
		t.Fatal("bob should not acquire alice's lock")
	}
	if !h.TryLock(0, "alice") {
		t.Fatal("alice re-locking her own cell should succeed")
	}
}

func TestUnlockOnlyReleasesOwnLock(t *testing.T) {
	e := engine.New(26, 100)
	h := New(e, nil)

	h.TryLock(0, "alice")
	h.Unlock(0, "bob")
	if h.TryLock(0, "bob") {
		t.Fatal("bob should still be blocked; unlock by a non-owner must be a no-op")
	}

	h.Unlock(0, "alice")
	if !h.TryLock(0, "bob") {
		t.Fatal("bob should acquire the lock once alice releases it")
	}
}

func TestApplyUpdateReleasesTheAuthorsLock(t *testing.T) {
	e := engine.New(26, 100)
	h := New(e, nil)

	idx, err := e.GetIndex(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	h.TryLock(idx, "alice")

	if err := h.ApplyUpdate(0, 0, "42", "alice"); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	if !h.TryLock(idx, "bob") {
		t.Fatal("lock should be released once the author's update lands")
	}
}

func TestApplyUpdatePropagatesEngineErrors(t *testing.T) {
	e := engine.New(26, 100)
	h := New(e, nil)

	if err := h.ApplyUpdate(1000, 0, "1", "alice"); err != engine.ErrOutOfBounds {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
}
