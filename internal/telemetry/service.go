// Package telemetry ties the ingest gate, field normalization, the reading
// store, and the display formatter together.
package telemetry

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/meteo-telemetry-service/internal/allowlist"
	"github.com/couchcryptid/meteo-telemetry-service/internal/display"
	"github.com/couchcryptid/meteo-telemetry-service/internal/domain"
	"github.com/couchcryptid/meteo-telemetry-service/internal/observability"
	"github.com/couchcryptid/meteo-telemetry-service/internal/settings"
	"github.com/couchcryptid/meteo-telemetry-service/internal/store"
	"github.com/couchcryptid/meteo-telemetry-service/internal/units"
)

// Source names where a push came from.
type Source string

const (
	SourceHTTP  Source = "http"
	SourceKafka Source = "kafka"
	SourceMQTT  Source = "mqtt"
)

// Brokered reports whether pushes from s arrive through a message broker,
// which hides the station's address.
func (s Source) Brokered() bool {
	return s == SourceKafka || s == SourceMQTT
}

// Store is the reading store as seen by the service: writes go through and
// reads come from the latest-reading cache.
type Store interface {
	Insert(ctx context.Context, r domain.Reading) (int64, error)
	Snapshot(ctx context.Context, keys []string) (store.Snapshot, error)
}

// Request is one telemetry push.
type Request struct {
	Source Source
	// Params holds every pushed key/value, including the secret.
	Params map[string]string
	// ClientAddr is the sender's address. Brokered pushes have none and skip
	// the origin check.
	ClientAddr string
}

// Result describes a stored push.
type Result struct {
	ID     int64
	Fields domain.Fields
}

// Service handles ingest and read requests.
type Service struct {
	settings  settings.Provider
	matcher   *allowlist.Matcher
	store     Store
	formatter *display.Formatter
	clock     clockwork.Clock
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewService creates a Service. A nil clock uses real time.
func NewService(p settings.Provider, m *allowlist.Matcher, s Store, f *display.Formatter, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		settings:  p,
		matcher:   m,
		store:     s,
		formatter: f,
		clock:     clock,
		metrics:   metrics,
		logger:    logger,
	}
}

// Settings returns the current runtime settings.
func (s *Service) Settings() settings.Settings {
	return settings.Load(s.settings)
}

// Ingest admits, normalizes, and stores one push. Rejected pushes change
// nothing.
func (s *Service) Ingest(ctx context.Context, req Request) (Result, error) {
	start := s.clock.Now()
	defer func() {
		s.metrics.IngestDuration.Observe(s.clock.Since(start).Seconds())
	}()

	r, err := s.Admit(ctx, req)
	if err != nil {
		return Result{}, err
	}
	id, err := s.Persist(ctx, req.Source, r)
	if err != nil {
		return Result{}, err
	}
	return Result{ID: id, Fields: r.Fields}, nil
}

// Admit runs the origin and secret checks and builds the reading to store.
func (s *Service) Admit(ctx context.Context, req Request) (domain.Reading, error) {
	cfg := settings.Load(s.settings)

	if !req.Source.Brokered() {
		if _, err := s.matcher.Check(ctx, req.ClientAddr, cfg.Allowlist()); err != nil {
			s.reject(req, err)
			return domain.Reading{}, err
		}
	}

	if cfg.SecretRequired && !secretMatches(cfg.Secret, req.Params) {
		err := domain.NewError(domain.KindUnauthorized, "missing or invalid secret", nil)
		s.reject(req, err)
		return domain.Reading{}, err
	}

	now := s.clock.Now()
	fields := domain.Normalize(req.Params, now)
	addr, _ := domain.ParseClientAddress(req.ClientAddr)
	return domain.NewReading(fields, addr, now), nil
}

// Persist stores an admitted reading. The latest-reading cache is refreshed by
// the store.
func (s *Service) Persist(ctx context.Context, src Source, r domain.Reading) (int64, error) {
	id, err := s.store.Insert(ctx, r)
	if err != nil {
		if domain.KindOf(err) == "" {
			err = domain.StoreError("insert reading", err)
		}
		s.metrics.IngestRequests.WithLabelValues(string(src), string(domain.KindStoreFailure)).Inc()
		s.logger.Error("store reading failed", "source", src, "error", err)
		return 0, err
	}
	s.metrics.IngestRequests.WithLabelValues(string(src), "stored").Inc()
	s.logger.Debug("reading stored", "source", src, "reading_id", id, "fields", len(r.Fields))
	return id, nil
}

// Latest returns the latest fields filtered to keys. Quantities with a unit in
// targets are converted from the station's units; all others are returned as
// stored.
func (s *Service) Latest(ctx context.Context, keys []string, targets units.Set) (store.Snapshot, error) {
	snap, err := s.store.Snapshot(ctx, keys)
	if err != nil {
		return store.Snapshot{}, err
	}
	snap.Latest = display.Convert(snap.Latest, settings.Load(s.settings).SourceUnits(), targets)
	return snap, nil
}

// Render formats the latest reading. With no reading stored yet the
// placeholder is rendered.
func (s *Service) Render(ctx context.Context, opts display.Options) (display.Output, error) {
	snap, err := s.store.Snapshot(ctx, nil)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return display.Output{}, err
	}
	return s.formatter.Render(snap.Latest, settings.Load(s.settings).SourceUnits(), opts)
}

func (s *Service) reject(req Request, err error) {
	kind := domain.KindOf(err)
	s.metrics.IngestRequests.WithLabelValues(string(req.Source), string(kind)).Inc()
	s.logger.Warn("ingest rejected", "source", req.Source, "client_addr", req.ClientAddr, "kind", kind, "error", err)
}

// secretMatches compares the pushed secret with the configured one in
// constant time. The key is matched case-insensitively; the value is not. An
// empty configured secret never matches.
func secretMatches(want string, params map[string]string) bool {
	if want == "" {
		return false
	}
	got, ok := params[domain.FieldSecret]
	if !ok {
		for k, v := range params {
			if strings.EqualFold(k, domain.FieldSecret) {
				got, ok = v, true
				break
			}
		}
	}
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
