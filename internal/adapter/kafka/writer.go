package kafka

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/meteo-telemetry-service/internal/config"
	"github.com/couchcryptid/meteo-telemetry-service/internal/domain"
)

// Dead-letter message headers.
const (
	HeaderError           = "dlq_error"
	HeaderSourceTopic     = "dlq_source_topic"
	HeaderSourcePartition = "dlq_source_partition"
	HeaderSourceOffset    = "dlq_source_offset"
	HeaderFailedAt        = "dlq_failed_at"
)

// DeadLetterWriter copies rejected payloads to a dead-letter topic.
// It implements pipeline.DeadLetterer.
type DeadLetterWriter struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewDeadLetterWriter creates a producer for the configured dead-letter topic.
func NewDeadLetterWriter(cfg *config.Config, logger *slog.Logger) *DeadLetterWriter {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaDLQTopic,
		Balancer:               &kafkago.LeastBytes{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &DeadLetterWriter{writer: w, logger: logger.With("component", "kafka-dlq", "topic", cfg.KafkaDLQTopic)}
}

// DeadLetter publishes the original payload annotated with why it was rejected.
func (w *DeadLetterWriter) DeadLetter(ctx context.Context, raw domain.RawMessage, cause error) error {
	msg := deadLetterMessage(raw, cause, time.Now().UTC())
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return err
	}
	w.logger.Debug("message dead-lettered", "source_topic", raw.Topic, "offset", raw.Offset)
	return nil
}

func (w *DeadLetterWriter) Close() error {
	return w.writer.Close()
}

// deadLetterMessage keeps the original key, value, and headers and appends
// the rejection details.
func deadLetterMessage(raw domain.RawMessage, cause error, failedAt time.Time) kafkago.Message {
	headers := make([]kafkago.Header, 0, len(raw.Headers)+5)
	for k, v := range raw.Headers {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(v)})
	}
	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}
	headers = append(headers,
		kafkago.Header{Key: HeaderError, Value: []byte(reason)},
		kafkago.Header{Key: HeaderSourceTopic, Value: []byte(raw.Topic)},
		kafkago.Header{Key: HeaderSourcePartition, Value: []byte(strconv.Itoa(raw.Partition))},
		kafkago.Header{Key: HeaderSourceOffset, Value: []byte(strconv.FormatInt(raw.Offset, 10))},
		kafkago.Header{Key: HeaderFailedAt, Value: []byte(failedAt.Format(time.RFC3339))},
	)
	return kafkago.Message{
		Key:     raw.Key,
		Value:   raw.Value,
		Headers: headers,
	}
}
