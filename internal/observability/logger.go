package observability

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"github.com/couchcryptid/meteo-telemetry-service/internal/config"
)

// NewLogger builds the root logger. LOG_FORMAT=text uses a colored tint
// handler for local development; anything else emits JSON.
func NewLogger(cfg *config.Config) *slog.Logger {
	level := ParseLevel(cfg.LogLevel)

	if strings.EqualFold(cfg.LogFormat, "text") {
		h := tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			AddSource:  true,
			TimeFormat: time.Kitchen,
		})
		return slog.New(h).With("app", "meteo-telemetry")
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("app", "meteo-telemetry")
}

// ParseLevel maps a LOG_LEVEL string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
