package core

import (
	"context"
	"mousedb/internal/infra/persistence/memory"
	"mousedb/internal/infra/persistence/sqlite"
	"path/filepath"
	"testing"
)

func TestOpenSnapshotStoreSelectsDriver(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSnapshotStore(ctx, StorageConfig{Driver: StorageMemory})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}

	path := filepath.Join(t.TempDir(), "colony.db")
	store, err = OpenSnapshotStore(ctx, StorageConfig{SQLitePath: path})
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	sq, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected sqlite default, got %T", store)
	}
	t.Cleanup(func() { _ = sq.Close() })
	if sq.Path() != path {
		t.Fatalf("unexpected sqlite path %s", sq.Path())
	}

	if _, err := OpenSnapshotStore(ctx, StorageConfig{Driver: "redis"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
