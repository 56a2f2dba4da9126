// Package store provides the in-memory reading store and the latest-reading
// cache that sits in front of every store implementation.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/couchcryptid/meteo-telemetry-service/internal/domain"
)

// Memory is a domain.ReadingStore held in process memory. Readings are lost on
// restart.
type Memory struct {
	mu       sync.RWMutex
	readings []domain.Reading
	nextID   int64
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{nextID: 1}
}

func (m *Memory) Insert(_ context.Context, r domain.Reading) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r.ID = m.nextID
	r.Fields = r.Fields.Clone()
	m.nextID++
	m.readings = append(m.readings, r)
	return r.ID, nil
}

func (m *Memory) Latest(_ context.Context) (domain.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.readings) == 0 {
		return domain.Reading{}, domain.ErrNotFound
	}
	best := m.readings[0]
	for _, r := range m.readings[1:] {
		if newer(r, best) {
			best = r
		}
	}
	best.Fields = best.Fields.Clone()
	return best, nil
}

func (m *Memory) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.readings[:0]
	var removed int64
	for _, r := range m.readings {
		if r.ReceivedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	clear(m.readings[len(kept):])
	m.readings = kept
	return removed, nil
}

// Len reports the number of stored readings.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.readings)
}

// newer orders readings by receive time, then by identifier.
func newer(a, b domain.Reading) bool {
	if !a.ReceivedAt.Equal(b.ReceivedAt) {
		return a.ReceivedAt.After(b.ReceivedAt)
	}
	return a.ID > b.ID
}

// CheckReadiness always succeeds; the memory store has nothing to connect to.
func (m *Memory) CheckReadiness(context.Context) error {
	return nil
}
