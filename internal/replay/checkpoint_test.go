package replay

import (
	"path/filepath"
	"testing"
)

func TestCheckpointRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	store := NewCheckpointStore(path, true)

	if _, ok, err := store.Load(); err != nil || ok {
		t.Fatalf("Load before save = (%v, %v), want miss", ok, err)
	}

	if err := store.Save(42); err != nil {
		t.Fatalf("save: %v", err)
	}
	cp, ok, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok || cp.LastProcessedSeq != 42 {
		t.Fatalf("loaded (%v, %d), want (true, 42)", ok, cp.LastProcessedSeq)
	}
	if cp.UpdatedAt == "" {
		t.Fatal("UpdatedAt not stamped")
	}

	if err := store.Save(43); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	cp, _, err = store.Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cp.LastProcessedSeq != 43 {
		t.Fatalf("LastProcessedSeq = %d, want 43", cp.LastProcessedSeq)
	}
}

func TestCheckpointDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	store := NewCheckpointStore(path, false)

	if err := store.Save(7); err != nil {
		t.Fatalf("disabled save: %v", err)
	}
	if _, ok, err := store.Load(); err != nil || ok {
		t.Fatalf("disabled load = (%v, %v), want miss", ok, err)
	}
}
