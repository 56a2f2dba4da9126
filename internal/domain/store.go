package domain

import (
	"context"
	"time"
)

// ReadingStore is an append-only, time-ordered record store.
type ReadingStore interface {
	// Insert appends r and returns its identifier. ReceivedAt is stored as given.
	Insert(ctx context.Context, r Reading) (int64, error)

	// Latest returns the most recent reading by ReceivedAt, ties broken by the
	// higher identifier. It returns ErrNotFound when the store is empty.
	Latest(ctx context.Context) (Reading, error)

	// DeleteOlderThan removes readings received strictly before cutoff and
	// reports how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
