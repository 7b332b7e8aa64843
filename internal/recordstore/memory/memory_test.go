package memory

import (
	"context"
	"errors"
	"testing"

	"budget/internal/recordstore"
)

func TestMemoryStoreGetSet(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, recordstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	blob := []byte(`[1,2]`)
	if err := s.Set(ctx, "k", blob); err != nil {
		t.Fatalf("set: %v", err)
	}
	blob[0] = 'x' // caller mutation must not leak into the store

	got, err := s.Get(ctx, "k")
	if err != nil || string(got) != `[1,2]` {
		t.Fatalf("unexpected get: %q err=%v", got, err)
	}
}

func TestMemoryStoreFailWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("disk full")

	s.FailWrites(boom)
	if err := s.Set(ctx, "k", []byte("v")); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, recordstore.ErrNotFound) {
		t.Fatalf("failed write must not be stored, got %v", err)
	}

	s.FailWrites(nil)
	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("set after recovery: %v", err)
	}
}
