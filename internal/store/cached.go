package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/meteo-telemetry-service/internal/domain"
	"github.com/couchcryptid/meteo-telemetry-service/internal/observability"
)

// DefaultLatestTTL is how long the latest field map is served without
// consulting the store.
const DefaultLatestTTL = 60 * time.Second

// Snapshot is the latest field map, optionally filtered, plus every key the
// latest reading carries.
type Snapshot struct {
	Latest        domain.Fields `json:"latest"`
	AvailableKeys []string      `json:"available_keys"`
}

// Cached decorates a ReadingStore with a single-slot cache of the most recent
// reading's serialized field map. Every successful Insert overwrites the slot.
type Cached struct {
	inner   domain.ReadingStore
	slot    Slot
	metrics *observability.Metrics
	logger  *slog.Logger

	// generation counts inserts and purges so a cache refill racing with
	// either is dropped. mu is never held across a store or slot call.
	mu         sync.Mutex
	generation uint64
}

// CachedOption configures NewCached.
type CachedOption func(*Cached)

// WithSlot replaces the process-local slot, for example with one shared
// between replicas.
func WithSlot(s Slot) CachedOption {
	return func(c *Cached) { c.slot = s }
}

// NewCached wraps inner. A nil clock uses real time.
func NewCached(inner domain.ReadingStore, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger, opts ...CachedOption) *Cached {
	c := &Cached{
		inner:   inner,
		metrics: metrics,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.slot == nil {
		c.slot = NewMemorySlot(ttl, clock)
	}
	return c
}

// Insert stores r and refreshes the cache slot with its fields. A failed
// insert leaves the cache untouched.
func (c *Cached) Insert(ctx context.Context, r domain.Reading) (int64, error) {
	id, err := c.inner.Insert(ctx, r)
	if err != nil {
		return 0, err
	}
	if err := c.fill(ctx, id, r.Fields); err != nil {
		c.logger.Warn("latest cache refresh failed", "reading_id", id, "error", err)
	}
	return id, nil
}

// Latest passes through to the underlying store.
func (c *Cached) Latest(ctx context.Context) (domain.Reading, error) {
	return c.inner.Latest(ctx)
}

// DeleteOlderThan passes through and drops the cache slot when anything was
// removed, since the cached reading may have been among them.
func (c *Cached) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := c.inner.DeleteOlderThan(ctx, cutoff)
	if err == nil && n > 0 {
		c.bump()
		if err := c.slot.Delete(ctx); err != nil {
			c.logger.Warn("latest cache drop failed", "error", err)
		}
	}
	return n, err
}

// LatestRaw returns the serialized field map of the most recent reading,
// served from the cache when fresh.
func (c *Cached) LatestRaw(ctx context.Context) ([]byte, error) {
	e, ok, err := c.slot.Get(ctx)
	if err != nil {
		c.logger.Warn("latest cache read failed", "error", err)
	}
	if ok {
		c.metrics.LatestCache.WithLabelValues("hit").Inc()
		c.logger.Debug("latest cache hit", "reading_id", e.ID)
		return e.Raw, nil
	}
	c.metrics.LatestCache.WithLabelValues("miss").Inc()
	c.logger.Debug("latest cache miss")

	gen := c.currentGeneration()

	r, err := c.inner.Latest(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(r.Fields)
	if err != nil {
		return nil, fmt.Errorf("encode latest fields: %w", err)
	}

	// Skip the refill if an insert or purge landed while the store was queried.
	if c.currentGeneration() == gen {
		if err := c.slot.Set(ctx, LatestEntry{ID: r.ID, Raw: raw}); err != nil {
			c.logger.Warn("latest cache refill failed", "reading_id", r.ID, "error", err)
		}
	}
	return raw, nil
}

// LatestFields decodes the latest field map.
func (c *Cached) LatestFields(ctx context.Context) (domain.Fields, error) {
	raw, err := c.LatestRaw(ctx)
	if err != nil {
		return nil, err
	}
	var f domain.Fields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode latest fields: %w", err)
	}
	return f, nil
}

// Snapshot returns the latest fields filtered to keys (all when empty) along
// with every available key. Filtering happens after retrieval so the cache
// always holds the full map.
func (c *Cached) Snapshot(ctx context.Context, keys []string) (Snapshot, error) {
	f, err := c.LatestFields(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Latest:        f.Select(keys),
		AvailableKeys: f.Keys(),
	}, nil
}

func (c *Cached) fill(ctx context.Context, id int64, f domain.Fields) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.bump()
	return c.slot.Set(ctx, LatestEntry{ID: id, Raw: raw})
}

func (c *Cached) bump() {
	c.mu.Lock()
	c.generation++
	c.mu.Unlock()
}

func (c *Cached) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}
