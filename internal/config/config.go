package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/google/uuid"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Reading store.
	StoreDriver  string
	SQLitePath   string
	SQLiteLogSQL bool
	PostgresDSN  string

	// Runtime settings file (units, allowlists, secret, retention).
	SettingsFile string

	// ClientIPHeader, when set, names a proxy header carrying the real client
	// address. The first entry of a comma-separated list is used.
	ClientIPHeader string

	LatestCacheTTL time.Duration
	// RedisURL, when set, moves the latest-reading cache slot into Redis so
	// replicas share it.
	RedisURL       string
	RedisKeyPrefix string

	DNSCacheTTL   time.Duration
	DNSTimeout    time.Duration
	PurgeInterval time.Duration

	// Optional Kafka ingest path.
	KafkaEnabled     bool
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaGroupID     string
	KafkaDLQTopic    string

	BatchSize          int
	BatchFlushInterval time.Duration

	// Optional MQTT ingest path.
	MQTTEnabled  bool
	MQTTBroker   string
	MQTTTopic    string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
	MQTTQoS      byte
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	latestTTL, err := parsePositiveDuration("LATEST_CACHE_TTL", "60s")
	if err != nil {
		return nil, err
	}
	dnsTTL, err := parsePositiveDuration("DNS_CACHE_TTL", "300s")
	if err != nil {
		return nil, err
	}
	dnsTimeout, err := parsePositiveDuration("DNS_TIMEOUT", "2s")
	if err != nil {
		return nil, err
	}
	purgeInterval, err := parsePositiveDuration("PURGE_INTERVAL", "24h")
	if err != nil {
		return nil, err
	}
	qos, err := strconv.Atoi(sharedcfg.EnvOrDefault("MQTT_QOS", "1"))
	if err != nil || qos < 0 || qos > 2 {
		return nil, errors.New("invalid MQTT_QOS")
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		StoreDriver:  sharedcfg.EnvOrDefault("STORE_DRIVER", StoreSQLite),
		SQLitePath:   sharedcfg.EnvOrDefault("SQLITE_PATH", "data/telemetry.db"),
		SQLiteLogSQL: parseBool("SQLITE_LOG_SQL"),
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),

		SettingsFile:   os.Getenv("SETTINGS_FILE"),
		ClientIPHeader: os.Getenv("CLIENT_IP_HEADER"),

		LatestCacheTTL: latestTTL,
		RedisURL:       strings.TrimSpace(os.Getenv("REDIS_URL")),
		RedisKeyPrefix: sharedcfg.EnvOrDefault("REDIS_KEY_PREFIX", "meteo"),
		DNSCacheTTL:    dnsTTL,
		DNSTimeout:     dnsTimeout,
		PurgeInterval:  purgeInterval,

		KafkaEnabled:     parseBool("KAFKA_ENABLED"),
		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic: strings.TrimSpace(sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "meteo-raw-telemetry")),
		KafkaGroupID:     sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "meteo-telemetry"),
		KafkaDLQTopic:    os.Getenv("KAFKA_DLQ_TOPIC"),

		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		MQTTEnabled:  parseBool("MQTT_ENABLED"),
		MQTTBroker:   strings.TrimSpace(sharedcfg.EnvOrDefault("MQTT_BROKER", "tcp://localhost:1883")),
		MQTTTopic:    strings.TrimSpace(sharedcfg.EnvOrDefault("MQTT_TOPIC", "meteobridge/telemetry")),
		MQTTClientID: sharedcfg.EnvOrDefault("MQTT_CLIENT_ID", defaultMQTTClientID()),
		MQTTUsername: os.Getenv("MQTT_USERNAME"),
		MQTTPassword: os.Getenv("MQTT_PASSWORD"),
		MQTTQoS:      byte(qos),
	}
	if _, ok := os.LookupEnv("SETTINGS_FILE"); !ok {
		cfg.SettingsFile = "data/settings.yaml"
	}

	switch cfg.StoreDriver {
	case StoreSQLite:
		if cfg.SQLitePath == "" {
			return nil, errors.New("SQLITE_PATH is required when STORE_DRIVER is sqlite")
		}
	case StorePostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("POSTGRES_DSN is required when STORE_DRIVER is postgres")
		}
	case StoreMemory:
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q", cfg.StoreDriver)
	}

	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSourceTopic == "" {
			return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
		}
	}

	if cfg.MQTTEnabled {
		if cfg.MQTTBroker == "" {
			return nil, errors.New("MQTT_BROKER is required")
		}
		if cfg.MQTTTopic == "" {
			return nil, errors.New("MQTT_TOPIC is required")
		}
	}

	return cfg, nil
}

// defaultMQTTClientID is unique per process; a broker disconnects the older of
// two sessions sharing a client ID.
func defaultMQTTClientID() string {
	return "meteo-telemetry-" + uuid.NewString()[:8]
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}
