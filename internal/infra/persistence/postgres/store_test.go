package postgres

import (
	"context"
	"database/sql"
	"mousedb/internal/infra/persistence/postgres/testutil"
	"mousedb/pkg/domain"
	"strings"
	"testing"
	"time"
)

func openStub(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	store, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, conn
}

func TestNewStoreEnsuresStateTable(t *testing.T) {
	_, conn := openStub(t)
	var sawDDL bool
	for _, stmt := range conn.Execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE IF NOT EXISTS STATE") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected state DDL, got execs: %v", conn.Execs)
	}
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	ctx := context.Background()
	store, conn := openStub(t)
	fixed := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	empty, err := store.LoadSnapshot(ctx)
	if err != nil || empty.Len() != 0 {
		t.Fatalf("expected empty snapshot, got %d err=%v", empty.Len(), err)
	}

	snap := domain.NewSnapshot(
		domain.MouseRecord{Key: 0, ID: "a", OriginalCage: "2-A-0001", CurrentLocation: "2-A-0001", Sex: domain.SexMale},
		domain.MouseRecord{Key: 3, ID: "b", OriginalCage: "1-B-7", CurrentLocation: "1-B-7", Sex: domain.SexFemale},
	)
	for i := 0; i < 2; i++ {
		if err := store.SaveSnapshot(ctx, snap); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	if got := len(conn.Buckets); got != 2 {
		t.Fatalf("expected records and meta buckets, got %d rows", got)
	}
	loaded, err := store.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", loaded.Len())
	}
	if rec, ok := loaded.Get(3); !ok || rec.ID != "b" {
		t.Fatalf("keys not preserved: %+v", loaded.Keys())
	}
	at, ok, err := store.SavedAt(ctx)
	if err != nil || !ok || !at.Equal(fixed) {
		t.Fatalf("unexpected saved-at %v ok=%v err=%v", at, ok, err)
	}
}

func TestSaveSnapshotRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	store, conn := openStub(t)
	conn.FailExec = true
	if err := store.SaveSnapshot(ctx, domain.NewSnapshot()); err == nil {
		t.Fatalf("expected exec failure")
	}
	if conn.Rollbacks == 0 {
		t.Fatalf("expected rollback after failed upsert")
	}
	conn.FailExec = false
	conn.FailCommit = true
	if err := store.SaveSnapshot(ctx, domain.NewSnapshot()); err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit failure, got %v", err)
	}
}

func TestNewStorePropagatesPingFailure(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), "postgres://example"); err == nil || !strings.Contains(err.Error(), "ping") {
		t.Fatalf("expected ping error, got %v", err)
	}
}

func TestLoadSnapshotPropagatesQueryFailure(t *testing.T) {
	store, conn := openStub(t)
	conn.FailQuery = true
	if _, err := store.LoadSnapshot(context.Background()); err == nil {
		t.Fatalf("expected query error")
	}
}
