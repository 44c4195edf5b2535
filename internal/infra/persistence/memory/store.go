// Package memory provides an in-process snapshot store for tests and
// ephemeral sessions.
package memory

import (
	"context"
	"mousedb/pkg/domain"
	"sync"
)

var _ domain.SnapshotStore = (*Store)(nil)

// Store keeps the last saved snapshot in memory.
type Store struct {
	mu       sync.RWMutex
	snapshot domain.Snapshot
	saves    int
}

// NewStore returns a store seeded with records.
func NewStore(records ...domain.MouseRecord) *Store {
	return &Store{snapshot: domain.NewSnapshot(records...)}
}

// LoadSnapshot returns a copy of the stored snapshot.
func (s *Store) LoadSnapshot(ctx context.Context) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Clone(), nil
}

// SaveSnapshot replaces the stored snapshot with a copy of snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, snapshot domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snapshot.Clone()
	s.saves++
	return nil
}

// Saves returns how many snapshots have been written.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
