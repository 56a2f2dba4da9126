package retention

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/meteo-telemetry-service/internal/domain"
	"github.com/couchcryptid/meteo-telemetry-service/internal/observability"
	"github.com/couchcryptid/meteo-telemetry-service/internal/settings"
	"github.com/couchcryptid/meteo-telemetry-service/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPurger(d Deleter, opts map[string]string, clock clockwork.Clock) *Purger {
	return NewPurger(d, settings.NewMemory(opts), time.Hour, clock, observability.NewMetricsForTesting(), discardLogger())
}

func TestRunOnce_RemovesReadingsPastRetention(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	mem := store.NewMemory()
	ctx := context.Background()
	for _, age := range []int{5, 40, 100} {
		_, err := mem.Insert(ctx, domain.Reading{
			ReceivedAt: clock.Now().Add(-time.Duration(age) * 24 * time.Hour),
			Fields:     domain.Fields{"T": domain.Value(strconv.Itoa(age))},
		})
		require.NoError(t, err)
	}

	p := newPurger(mem, map[string]string{settings.KeyRetentionDays: "30"}, clock)
	removed, err := p.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), removed)
	assert.Equal(t, 1, mem.Len())
	r, err := mem.Latest(ctx)
	require.NoError(t, err)
	assert.True(t, r.ReceivedAt.Equal(clock.Now().Add(-5*24*time.Hour)))
}

// recordingDeleter captures cutoffs and can block until released.
type recordingDeleter struct {
	calls   atomic.Int32
	cutoffs chan time.Time
	release chan struct{}
	err     error
}

func newRecordingDeleter() *recordingDeleter {
	return &recordingDeleter{cutoffs: make(chan time.Time, 10)}
}

func (d *recordingDeleter) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	d.calls.Add(1)
	d.cutoffs <- cutoff
	if d.release != nil {
		select {
		case <-d.release:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return 0, d.err
}

func TestRunOnce_UsesConfiguredWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := newRecordingDeleter()

	_, err := newPurger(d, map[string]string{settings.KeyRetentionDays: "7"}, clock).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(-7*24*time.Hour), <-d.cutoffs)
}

func TestRunOnce_NotConcurrent(t *testing.T) {
	d := newRecordingDeleter()
	d.release = make(chan struct{})
	p := newPurger(d, nil, clockwork.NewFakeClock())

	done := make(chan error, 1)
	go func() {
		_, err := p.RunOnce(context.Background())
		done <- err
	}()
	<-d.cutoffs // first purge is inside DeleteOlderThan

	_, err := p.RunOnce(context.Background())
	require.ErrorIs(t, err, ErrPurgeRunning)

	close(d.release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), d.calls.Load())

	// Released: the next purge may run.
	_, err = p.RunOnce(context.Background())
	require.NoError(t, err)
}

func TestRunOnce_StoreError(t *testing.T) {
	d := newRecordingDeleter()
	d.err = errors.New("database is locked")

	_, err := newPurger(d, nil, clockwork.NewFakeClock()).RunOnce(context.Background())
	require.Error(t, err)
}

func TestRun_PurgesOnStartAndEveryInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := newRecordingDeleter()
	p := newPurger(d, nil, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	<-d.cutoffs
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Hour)
	<-d.cutoffs

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, int32(2), d.calls.Load())
}
