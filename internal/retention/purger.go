// Package retention deletes readings older than the configured retention
// window on a fixed schedule.
package retention

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/meteo-telemetry-service/internal/observability"
	"github.com/couchcryptid/meteo-telemetry-service/internal/settings"
)

// DefaultInterval is the purge period.
const DefaultInterval = 24 * time.Hour

// ErrPurgeRunning is returned by RunOnce when another purge is in progress.
var ErrPurgeRunning = errors.New("retention purge already running")

// Deleter removes readings received before a cutoff.
type Deleter interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Purger runs the retention delete. At most one purge runs at a time.
type Purger struct {
	store    Deleter
	settings settings.Provider
	interval time.Duration
	clock    clockwork.Clock
	metrics  *observability.Metrics
	logger   *slog.Logger
	running  atomic.Bool
}

// NewPurger creates a Purger. A nil clock uses real time.
func NewPurger(store Deleter, p settings.Provider, interval time.Duration, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Purger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Purger{
		store:    store,
		settings: p,
		interval: interval,
		clock:    clock,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run purges once immediately and then every interval until ctx is cancelled.
func (p *Purger) Run(ctx context.Context) error {
	p.logger.Info("retention purge scheduled", "interval", p.interval)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.RunOnce(ctx); err != nil && !errors.Is(err, ErrPurgeRunning) {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error("retention purge failed", "error", err)
		}

		select {
		case <-ctx.Done():
			p.logger.Info("retention purge stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}
	}
}

// RunOnce deletes readings older than the current retention window and
// reports how many were removed.
func (p *Purger) RunOnce(ctx context.Context) (int64, error) {
	if !p.running.CompareAndSwap(false, true) {
		return 0, ErrPurgeRunning
	}
	defer p.running.Store(false)

	days := settings.Load(p.settings).RetentionDays
	now := p.clock.Now()
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)

	removed, err := p.store.DeleteOlderThan(ctx, cutoff)
	p.metrics.PurgeDuration.Observe(p.clock.Since(now).Seconds())
	if err != nil {
		return 0, err
	}

	p.metrics.ReadingsPurged.Add(float64(removed))
	p.metrics.LastPurgeTimestamp.Set(float64(now.Unix()))
	p.logger.Info("retention purge complete", "retention_days", days, "cutoff", cutoff, "removed", removed)
	return removed, nil
}
