package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/meteo-telemetry-service/internal/domain"
	"github.com/couchcryptid/meteo-telemetry-service/internal/telemetry"
)

// Admitter runs the ingest gate and builds the reading to store.
type Admitter interface {
	Admit(ctx context.Context, req telemetry.Request) (domain.Reading, error)
}

// Persister stores an admitted reading.
type Persister interface {
	Persist(ctx context.Context, src telemetry.Source, r domain.Reading) (int64, error)
}

// TelemetryTransformer implements Transformer by decoding the message body as
// a flat JSON object of pushed fields and running it through the same gate as
// HTTP pushes.
type TelemetryTransformer struct {
	admitter Admitter
	logger   *slog.Logger
}

// NewTransformer creates a TelemetryTransformer.
func NewTransformer(a Admitter, logger *slog.Logger) *TelemetryTransformer {
	return &TelemetryTransformer{admitter: a, logger: logger}
}

func (t *TelemetryTransformer) Transform(ctx context.Context, raw domain.RawMessage) (domain.Reading, error) {
	params, err := domain.ParseRawMessage(raw)
	if err != nil {
		return domain.Reading{}, err
	}
	return t.admitter.Admit(ctx, telemetry.Request{
		Source: telemetry.SourceKafka,
		Params: params,
	})
}

// StoreLoader implements BatchLoader on top of the telemetry service.
type StoreLoader struct {
	persister Persister
}

// NewLoader creates a StoreLoader.
func NewLoader(p Persister) *StoreLoader {
	return &StoreLoader{persister: p}
}

// LoadBatch stores each reading in order and stops at the first failure.
func (l *StoreLoader) LoadBatch(ctx context.Context, readings []domain.Reading) error {
	for i := range readings {
		if _, err := l.persister.Persist(ctx, telemetry.SourceKafka, readings[i]); err != nil {
			return err
		}
	}
	return nil
}
