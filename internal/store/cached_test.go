package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/meteo-telemetry-service/internal/domain"
	"github.com/couchcryptid/meteo-telemetry-service/internal/observability"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingStore counts Latest calls and can be made to fail inserts.
type countingStore struct {
	*Memory
	latestCalls atomic.Int32
	insertErr   error
}

func (s *countingStore) Insert(ctx context.Context, r domain.Reading) (int64, error) {
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	return s.Memory.Insert(ctx, r)
}

func (s *countingStore) Latest(ctx context.Context) (domain.Reading, error) {
	s.latestCalls.Add(1)
	return s.Memory.Latest(ctx)
}

func newCachedForTest(t *testing.T) (*Cached, *countingStore, *clockwork.FakeClock, *observability.Metrics) {
	t.Helper()
	inner := &countingStore{Memory: NewMemory()}
	clock := clockwork.NewFakeClock()
	metrics := observability.NewMetricsForTesting()
	return NewCached(inner, DefaultLatestTTL, clock, metrics, discardLogger()), inner, clock, metrics
}

func TestCached_EmptyIsNotFound(t *testing.T) {
	c, _, _, _ := newCachedForTest(t)
	_, err := c.Snapshot(context.Background(), nil)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCached_ReadsWithinTTLAreByteIdentical(t *testing.T) {
	c, inner, clock, _ := newCachedForTest(t)
	ctx := context.Background()

	_, err := c.Insert(ctx, reading(clock.Now(), domain.Fields{"T": "21.5", "H": "60"}))
	require.NoError(t, err)

	first, err := c.LatestRaw(ctx)
	require.NoError(t, err)
	clock.Advance(59 * time.Second)
	second, err := c.LatestRaw(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(0), inner.latestCalls.Load(), "insert primes the cache")
}

func TestCached_RequeriesAfterTTLWithSameData(t *testing.T) {
	c, inner, clock, _ := newCachedForTest(t)
	ctx := context.Background()

	_, err := c.Insert(ctx, reading(clock.Now(), domain.Fields{"T": "21.5", "W": "10"}))
	require.NoError(t, err)
	before, err := c.LatestRaw(ctx)
	require.NoError(t, err)

	clock.Advance(61 * time.Second)
	after, err := c.LatestRaw(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(1), inner.latestCalls.Load())
	assert.JSONEq(t, string(before), string(after))
}

func TestCached_InsertRefreshesSlot(t *testing.T) {
	c, _, clock, _ := newCachedForTest(t)
	ctx := context.Background()

	_, _ = c.Insert(ctx, reading(clock.Now(), domain.Fields{"T": "1"}))
	_, _ = c.LatestRaw(ctx)
	clock.Advance(time.Second)
	_, _ = c.Insert(ctx, reading(clock.Now(), domain.Fields{"T": "2"}))

	f, err := c.LatestFields(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Value("2"), f["T"])
}

func TestCached_FailedInsertLeavesCache(t *testing.T) {
	c, inner, clock, _ := newCachedForTest(t)
	ctx := context.Background()

	_, _ = c.Insert(ctx, reading(clock.Now(), domain.Fields{"T": "1"}))
	inner.insertErr = errors.New("disk full")

	_, err := c.Insert(ctx, reading(clock.Now(), domain.Fields{"T": "2"}))
	require.Error(t, err)

	f, err := c.LatestFields(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Value("1"), f["T"])
}

func TestCached_SnapshotFiltersAfterRetrieval(t *testing.T) {
	c, _, clock, _ := newCachedForTest(t)
	ctx := context.Background()
	_, _ = c.Insert(ctx, reading(clock.Now(), domain.Fields{"T": "21.5", "H": "60", "P": "1013"}))

	snap, err := c.Snapshot(ctx, []string{"t", "p", "missing"})
	require.NoError(t, err)
	if diff := cmp.Diff(domain.Fields{"T": "21.5", "P": "1013"}, snap.Latest); diff != "" {
		t.Errorf("filtered fields mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"H", "P", "T"}, snap.AvailableKeys)

	full, err := c.Snapshot(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, full.Latest, 3)
}

func TestCached_PurgeDropsSlot(t *testing.T) {
	c, inner, clock, _ := newCachedForTest(t)
	ctx := context.Background()
	_, _ = c.Insert(ctx, reading(clock.Now().AddDate(0, 0, -40), domain.Fields{"T": "old"}))

	removed, err := c.DeleteOlderThan(ctx, clock.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = c.LatestRaw(ctx)
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, int32(1), inner.latestCalls.Load())
}

// brokenSlot fails every call, like an unreachable shared cache.
type brokenSlot struct{}

func (brokenSlot) Get(context.Context) (LatestEntry, bool, error) {
	return LatestEntry{}, false, errors.New("connection refused")
}
func (brokenSlot) Set(context.Context, LatestEntry) error { return errors.New("connection refused") }
func (brokenSlot) Delete(context.Context) error           { return errors.New("connection refused") }

func TestCached_SlotFailureFallsBackToStore(t *testing.T) {
	inner := &countingStore{Memory: NewMemory()}
	clock := clockwork.NewFakeClock()
	c := NewCached(inner, DefaultLatestTTL, clock, observability.NewMetricsForTesting(), discardLogger(), WithSlot(brokenSlot{}))
	ctx := context.Background()

	_, err := c.Insert(ctx, reading(clock.Now(), domain.Fields{"T": "20.5"}))
	require.NoError(t, err)

	snap, err := c.Snapshot(ctx, []string{"t"})
	require.NoError(t, err)
	assert.Equal(t, domain.Fields{"T": "20.5"}, snap.Latest)
	assert.Equal(t, int32(1), inner.latestCalls.Load())

	_, err = c.DeleteOlderThan(ctx, clock.Now().Add(time.Second))
	require.NoError(t, err)
}
