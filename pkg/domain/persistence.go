package domain

import "context"

// SnapshotStore is a minimal abstraction over durable backends holding the
// last persisted colony snapshot.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context) (Snapshot, error)
	SaveSnapshot(ctx context.Context, snapshot Snapshot) error
}

// Rand is the randomness source injected into identity issuance. It is
// satisfied by *math/rand/v2.Rand.
type Rand interface {
	IntN(n int) int
}
