// Package postgres persists colony snapshots to a PostgreSQL state table.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"mousedb/pkg/domain"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ domain.SnapshotStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/mousedb?sslmode=disable"

	bucketRecords = "records"
	bucketMeta    = "meta"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

type meta struct {
	SavedAt time.Time `json:"saved_at"`
	Count   int       `json:"count"`
}

// Store keeps the snapshot as JSONB payloads keyed by bucket.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewStore opens a Postgres-backed store using dsn (falls back to defaultDSN)
// and ensures the state table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureStateTable(ctx, db); err != nil {
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

func ensureStateTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure state table: %w", err)
	}
	return nil
}

func (s *Store) buckets(ctx context.Context) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return nil, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := make(map[string][]byte)
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		out[bucket] = payload
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state: %w", err)
	}
	return out, nil
}

// LoadSnapshot reads the persisted snapshot; an empty table yields an empty snapshot.
func (s *Store) LoadSnapshot(ctx context.Context) (domain.Snapshot, error) {
	buckets, err := s.buckets(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	payload := buckets[bucketRecords]
	if len(payload) == 0 {
		return domain.NewSnapshot(), nil
	}
	var snapshot domain.Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode %s: %w", bucketRecords, err)
	}
	return snapshot, nil
}

// SavedAt reports when the snapshot was last written.
func (s *Store) SavedAt(ctx context.Context) (time.Time, bool, error) {
	buckets, err := s.buckets(ctx)
	if err != nil {
		return time.Time{}, false, err
	}
	payload := buckets[bucketMeta]
	if len(payload) == 0 {
		return time.Time{}, false, nil
	}
	var m meta
	if err := json.Unmarshal(payload, &m); err != nil {
		return time.Time{}, false, fmt.Errorf("decode %s: %w", bucketMeta, err)
	}
	return m.SavedAt, true, nil
}

// SaveSnapshot replaces the persisted snapshot in one transaction.
func (s *Store) SaveSnapshot(ctx context.Context, snapshot domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode %s: %w", bucketRecords, err)
	}
	info, err := json.Marshal(meta{SavedAt: s.now().UTC(), Count: snapshot.Len()})
	if err != nil {
		return fmt.Errorf("encode %s: %w", bucketMeta, err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, b := range []struct {
		name string
		data []byte
	}{{bucketRecords, records}, {bucketMeta, info}} {
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, b.name, b.data); err != nil {
			return fmt.Errorf("upsert %s: %w", b.name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
