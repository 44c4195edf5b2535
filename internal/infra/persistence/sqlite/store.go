// Package sqlite persists colony snapshots to an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"mousedb/pkg/domain"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.SnapshotStore = (*Store)(nil)

const (
	defaultPath   = "mousedb.db"
	bucketRecords = "records"
	bucketMeta    = "meta"
)

type meta struct {
	SavedAt time.Time `json:"saved_at"`
	Count   int       `json:"count"`
}

// Store keeps the snapshot as JSON payloads in a single state table.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewStore opens (or creates) the database at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	return &Store{db: db, path: path, now: time.Now}, nil
}

// LoadSnapshot reads the persisted snapshot; an empty database yields an empty snapshot.
func (s *Store) LoadSnapshot(ctx context.Context) (domain.Snapshot, error) {
	var snapshot domain.Snapshot
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM state WHERE bucket = ?`, bucketRecords).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewSnapshot(), nil
	}
	if err != nil {
		return snapshot, fmt.Errorf("select state: %w", err)
	}
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode %s: %w", bucketRecords, err)
	}
	return snapshot, nil
}

// SaveSnapshot replaces the persisted snapshot in one transaction.
func (s *Store) SaveSnapshot(ctx context.Context, snapshot domain.Snapshot) (retErr error) {
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
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, b := range []struct {
		name string
		data []byte
	}{{bucketRecords, records}, {bucketMeta, info}} {
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, b.name, b.data); err != nil {
			return fmt.Errorf("upsert %s: %w", b.name, err)
		}
	}
	return tx.Commit()
}

// SavedAt reports when the snapshot was last written.
func (s *Store) SavedAt(ctx context.Context) (time.Time, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM state WHERE bucket = ?`, bucketMeta).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("select meta: %w", err)
	}
	var m meta
	if err := json.Unmarshal(payload, &m); err != nil {
		return time.Time{}, false, fmt.Errorf("decode %s: %w", bucketMeta, err)
	}
	return m.SavedAt, true, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
