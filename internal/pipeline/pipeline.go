// Package pipeline runs the batch extract-transform-load loop that feeds
// telemetry consumed from Kafka into the reading store.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/meteo-telemetry-service/internal/domain"
	"github.com/couchcryptid/meteo-telemetry-service/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// BatchExtractor reads up to batchSize raw messages from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawMessage, error)
}

// Transformer validates a raw message and turns it into a reading.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawMessage) (domain.Reading, error)
}

// BatchLoader persists admitted readings.
type BatchLoader interface {
	LoadBatch(ctx context.Context, readings []domain.Reading) error
}

// DeadLetterer receives messages that failed validation.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, raw domain.RawMessage, cause error) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithDeadLetter copies rejected messages to d before committing them.
func WithDeadLetter(d DeadLetterer) Option {
	return func(p *Pipeline) { p.deadLetter = d }
}

// Pipeline orchestrates the extract-transform-load loop.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	deadLetter  DeadLetterer
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness returns nil once the last poll of the source succeeded.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("kafka source not reachable")
	}
	return nil
}

// Ready reports whether the last poll of the source succeeded.
func (p *Pipeline) Ready() bool {
	return p.ready.Load()
}

// Run executes the batch loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize, "dead_letter", p.deadLetter != nil)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff) {
			return nil
		}
	}
}

// processBatch runs one extract-transform-load cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration) bool {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.ready.Store(false)
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff)
	}
	p.ready.Store(true)

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.MessagesConsumed.Add(float64(len(rawBatch)))
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))
	*backoff = initialBackoff

	loaded, ok := p.transformAndLoad(ctx, rawBatch, backoff)
	if !ok {
		return false
	}

	if loaded > 0 {
		p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	}
	return true
}

// transformAndLoad validates each message, loads the admitted readings, and
// commits offsets. Rejected messages are dead-lettered and committed right
// away. Returns the number of loaded readings and false if the pipeline
// should stop.
func (p *Pipeline) transformAndLoad(ctx context.Context, rawBatch []domain.RawMessage, backoff *time.Duration) (int, bool) {
	readings := make([]domain.Reading, 0, len(rawBatch))
	admitted := make([]domain.RawMessage, 0, len(rawBatch))

	for _, raw := range rawBatch {
		r, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			p.logger.Warn("transform failed, skipping message",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.TransformErrors.Inc()
			p.deadLetterMessage(ctx, raw, err)
			p.commitOffset(ctx, raw)
			continue
		}
		readings = append(readings, r)
		admitted = append(admitted, raw)
	}

	if len(readings) == 0 {
		return 0, true
	}

	if err := p.loader.LoadBatch(ctx, readings); err != nil {
		p.logger.Error("load batch failed", "error", err, "batch_size", len(readings))
		return 0, p.backoffOrStop(ctx, backoff)
	}

	for _, raw := range admitted {
		p.commitOffset(ctx, raw)
	}
	return len(readings), true
}

func (p *Pipeline) deadLetterMessage(ctx context.Context, raw domain.RawMessage, cause error) {
	if p.deadLetter == nil {
		return
	}
	if err := p.deadLetter.DeadLetter(ctx, raw, cause); err != nil {
		p.logger.Error("dead-letter failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
		return
	}
	p.metrics.DeadLettered.Inc()
}

// backoffOrStop sleeps with the current backoff and advances it. Returns false
// if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !retry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = retry.NextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawMessage) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}
