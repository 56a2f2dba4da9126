// Package mqtt receives telemetry pushes that a station publishes to an MQTT
// broker.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/couchcryptid/meteo-telemetry-service/internal/config"
	"github.com/couchcryptid/meteo-telemetry-service/internal/domain"
	"github.com/couchcryptid/meteo-telemetry-service/internal/observability"
	"github.com/couchcryptid/meteo-telemetry-service/internal/telemetry"
)

const (
	connectPoll      = 200 * time.Millisecond
	subscribeTimeout = 5 * time.Second
	handleTimeout    = 10 * time.Second
	quiesceMillis    = 250
)

// Ingester stores one telemetry push.
type Ingester interface {
	Ingest(ctx context.Context, req telemetry.Request) (telemetry.Result, error)
}

// Subscriber feeds messages from one MQTT topic into the ingest service.
type Subscriber struct {
	client   paho.Client
	broker   string
	topic    string
	qos      byte
	ingester Ingester
	metrics  *observability.Metrics
	logger   *slog.Logger

	mu         sync.RWMutex
	subscribed bool
}

// NewSubscriber creates a subscriber for cfg.MQTTTopic. It does not connect
// until Run is called.
func NewSubscriber(cfg *config.Config, ing Ingester, metrics *observability.Metrics, logger *slog.Logger) *Subscriber {
	s := &Subscriber{
		broker:   cfg.MQTTBroker,
		topic:    cfg.MQTTTopic,
		qos:      cfg.MQTTQoS,
		ingester: ing,
		metrics:  metrics,
		logger:   logger.With("component", "mqtt-subscriber", "topic", cfg.MQTTTopic),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.MQTTBroker)
	opts.SetClientID(cfg.MQTTClientID)
	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
		opts.SetPassword(cfg.MQTTPassword)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// Clean sessions drop subscriptions; resubscribe on every connect.
	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		s.setSubscribed(false)
		s.metrics.MQTTConnected.Set(0)
		s.logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = paho.NewClient(opts)
	return s
}

// Run connects to the broker and delivers messages until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	token := s.client.Connect()
	for !token.WaitTimeout(connectPoll) {
		if ctx.Err() != nil {
			s.client.Disconnect(0)
			return nil
		}
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	<-ctx.Done()

	if s.client.IsConnected() {
		s.client.Unsubscribe(s.topic).WaitTimeout(2 * time.Second)
	}
	s.client.Disconnect(quiesceMillis)
	s.setSubscribed(false)
	s.metrics.MQTTConnected.Set(0)
	s.logger.Info("mqtt subscriber disconnected")
	return nil
}

// CheckReadiness reports an error until the topic subscription is active.
func (s *Subscriber) CheckReadiness(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.subscribed {
		return errors.New("mqtt broker not connected")
	}
	return nil
}

func (s *Subscriber) onConnect(c paho.Client) {
	s.metrics.MQTTConnected.Set(1)
	s.logger.Info("mqtt connected", "broker", s.broker)

	token := c.Subscribe(s.topic, s.qos, func(_ paho.Client, msg paho.Message) {
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()
		_ = s.handle(ctx, msg.Topic(), msg.Payload())
	})
	// The subscribe ack is awaited off the connect handler.
	go func() {
		if !token.WaitTimeout(subscribeTimeout) {
			s.logger.Error("mqtt subscribe timed out")
			return
		}
		if err := token.Error(); err != nil {
			s.logger.Error("mqtt subscribe failed", "error", err)
			return
		}
		s.setSubscribed(true)
		s.logger.Info("subscribed to mqtt topic", "qos", s.qos)
	}()
}

// handle decodes one message and passes it to the ingest service.
func (s *Subscriber) handle(ctx context.Context, topic string, payload []byte) error {
	params, err := domain.ParseRawMessage(domain.RawMessage{Topic: topic, Value: payload})
	if err != nil {
		s.metrics.MQTTMessages.WithLabelValues("invalid_payload").Inc()
		s.logger.Warn("invalid mqtt payload", "message_topic", topic, "size", len(payload), "error", err)
		return err
	}

	res, err := s.ingester.Ingest(ctx, telemetry.Request{Source: telemetry.SourceMQTT, Params: params})
	if err != nil {
		s.metrics.MQTTMessages.WithLabelValues("rejected").Inc()
		s.logger.Warn("mqtt push not stored", "message_topic", topic, "error", err)
		return err
	}

	s.metrics.MQTTMessages.WithLabelValues("stored").Inc()
	s.logger.Debug("mqtt push stored", "message_topic", topic, "id", res.ID)
	return nil
}

func (s *Subscriber) setSubscribed(v bool) {
	s.mu.Lock()
	s.subscribed = v
	s.mu.Unlock()
}
