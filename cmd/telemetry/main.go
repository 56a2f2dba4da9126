package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	goredis "github.com/go-redis/redis/v8"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/meteo-telemetry-service/internal/adapter/dns"
	httpadapter "github.com/couchcryptid/meteo-telemetry-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/meteo-telemetry-service/internal/adapter/kafka"
	mqttadapter "github.com/couchcryptid/meteo-telemetry-service/internal/adapter/mqtt"
	"github.com/couchcryptid/meteo-telemetry-service/internal/adapter/postgres"
	redisadapter "github.com/couchcryptid/meteo-telemetry-service/internal/adapter/redis"
	"github.com/couchcryptid/meteo-telemetry-service/internal/adapter/sqlite"
	"github.com/couchcryptid/meteo-telemetry-service/internal/allowlist"
	"github.com/couchcryptid/meteo-telemetry-service/internal/config"
	"github.com/couchcryptid/meteo-telemetry-service/internal/display"
	"github.com/couchcryptid/meteo-telemetry-service/internal/domain"
	"github.com/couchcryptid/meteo-telemetry-service/internal/observability"
	"github.com/couchcryptid/meteo-telemetry-service/internal/pipeline"
	"github.com/couchcryptid/meteo-telemetry-service/internal/retention"
	"github.com/couchcryptid/meteo-telemetry-service/internal/settings"
	"github.com/couchcryptid/meteo-telemetry-service/internal/store"
	"github.com/couchcryptid/meteo-telemetry-service/internal/telemetry"
)

// readingStore is a backing store that can report its health.
type readingStore interface {
	domain.ReadingStore
	sharedobs.ReadinessChecker
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backing, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	slotOpts, closeSlot, err := openLatestSlot(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer closeSlot()
	cached := store.NewCached(backing, cfg.LatestCacheTTL, clock, metrics, logger, slotOpts...)

	provider, err := openSettings(cfg)
	if err != nil {
		logger.Error("failed to open settings", "path", cfg.SettingsFile, "error", err)
		os.Exit(1)
	}
	current := settings.Load(provider)
	logger.Info("settings loaded",
		"path", cfg.SettingsFile,
		"retention_days", current.RetentionDays,
		"ip_allowlist_enabled", current.IPAllowlistEnabled,
		"dns_allowlist_enabled", current.DNSAllowlistEnabled,
		"secret_required", current.SecretRequired,
	)

	resolver := dns.NewCachedResolver(dns.NewResolver(cfg.DNSTimeout, metrics, logger), cfg.DNSCacheTTL, clock, metrics, logger)
	matcher := allowlist.NewMatcher(resolver, logger)

	formatter, err := display.New()
	if err != nil {
		logger.Error("failed to load display templates", "error", err)
		os.Exit(1)
	}

	svc := telemetry.NewService(provider, matcher, cached, formatter, clock, metrics, logger)
	purger := retention.NewPurger(cached, provider, cfg.PurgeInterval, clock, metrics, logger)

	readiness := observability.Readiness{backing}

	var (
		reader *kafkaadapter.Reader
		dlq    *kafkaadapter.DeadLetterWriter
		p      *pipeline.Pipeline
	)
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		var opts []pipeline.Option
		if cfg.KafkaDLQTopic != "" {
			dlq = kafkaadapter.NewDeadLetterWriter(cfg, logger)
			opts = append(opts, pipeline.WithDeadLetter(dlq))
		}
		p = pipeline.New(reader, pipeline.NewTransformer(svc, logger), pipeline.NewLoader(svc), logger, metrics, cfg.BatchSize, opts...)
		readiness = append(readiness, p)
		logger.Info("kafka ingest enabled", "topic", cfg.KafkaSourceTopic, "group_id", cfg.KafkaGroupID, "dlq_topic", cfg.KafkaDLQTopic)
	} else {
		logger.Info("kafka ingest disabled")
	}

	var sub *mqttadapter.Subscriber
	if cfg.MQTTEnabled {
		sub = mqttadapter.NewSubscriber(cfg, svc, metrics, logger)
		readiness = append(readiness, sub)
		logger.Info("mqtt ingest enabled", "broker", cfg.MQTTBroker, "topic", cfg.MQTTTopic, "qos", cfg.MQTTQoS)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, readiness, cfg.ClientIPHeader, logger)

	// Start HTTP server.
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Background workers share one lifetime; the first failure stops the service.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := purger.Run(gctx); err != nil {
			return fmt.Errorf("retention job: %w", err)
		}
		return nil
	})
	if p != nil {
		g.Go(func() error {
			if err := p.Run(gctx); err != nil {
				return fmt.Errorf("kafka pipeline: %w", err)
			}
			return nil
		})
	}
	if sub != nil {
		g.Go(func() error {
			if err := sub.Run(gctx); err != nil {
				return fmt.Errorf("mqtt subscriber: %w", err)
			}
			return nil
		})
	}
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		if err := g.Wait(); err != nil {
			logger.Error("background worker failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		logger.Warn("background workers did not stop before shutdown timeout")
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if dlq != nil {
		if err := dlq.Close(); err != nil {
			logger.Error("kafka dead-letter writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// openStore opens the backing store selected by STORE_DRIVER.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (readingStore, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		s, err := sqlite.Open(ctx, sqlite.Options{Path: cfg.SQLitePath, LogSQL: cfg.SQLiteLogSQL}, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("sqlite store opened", "path", cfg.SQLitePath)
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Error("sqlite close error", "error", err)
			}
		}, nil
	case config.StorePostgres:
		s, err := postgres.Open(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.StoreMemory:
		logger.Warn("memory store in use, readings are lost on restart")
		return store.NewMemory(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("invalid STORE_DRIVER %q", cfg.StoreDriver)
	}
}

// openLatestSlot returns the options placing the latest-reading cache in
// Redis when REDIS_URL is set. Otherwise the process-local slot is used.
func openLatestSlot(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]store.CachedOption, func(), error) {
	if cfg.RedisURL == "" {
		return nil, func() {}, nil
	}
	opts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("latest cache shared through redis", "addr", opts.Addr, "key", redisadapter.Key(cfg.RedisKeyPrefix))

	slot := redisadapter.NewSlot(client, cfg.RedisKeyPrefix, cfg.LatestCacheTTL)
	return []store.CachedOption{store.WithSlot(slot)}, func() {
		if err := client.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}, nil
}

// openSettings returns the YAML-backed provider, or an in-memory one when
// SETTINGS_FILE is empty.
func openSettings(cfg *config.Config) (settings.Provider, error) {
	if cfg.SettingsFile == "" {
		return settings.NewMemory(nil), nil
	}
	return settings.OpenFile(cfg.SettingsFile)
}
