package store

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/meteo-telemetry-service/internal/cache"
)

// LatestEntry is the cached form of the most recent reading.
type LatestEntry struct {
	ID  int64
	Raw []byte
}

// Slot holds at most one LatestEntry with a bounded lifetime. Set never
// replaces an entry that has a higher ID.
type Slot interface {
	Get(ctx context.Context) (LatestEntry, bool, error)
	Set(ctx context.Context, e LatestEntry) error
	Delete(ctx context.Context) error
}

// MemorySlot is a process-local Slot.
type MemorySlot struct {
	mu  sync.Mutex
	ttl *cache.TTL[struct{}, LatestEntry]
}

// NewMemorySlot creates a slot whose entry expires ttl after it was set.
func NewMemorySlot(ttl time.Duration, clock clockwork.Clock) *MemorySlot {
	return &MemorySlot{ttl: cache.NewTTL[struct{}, LatestEntry](ttl, clock)}
}

func (s *MemorySlot) Get(context.Context) (LatestEntry, bool, error) {
	e, ok := s.ttl.Get(struct{}{})
	return e, ok, nil
}

func (s *MemorySlot) Set(_ context.Context, e LatestEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.ttl.Get(struct{}{}); ok && cur.ID > e.ID {
		return nil
	}
	s.ttl.Set(struct{}{}, e)
	return nil
}

func (s *MemorySlot) Delete(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttl.Delete(struct{}{})
	return nil
}
