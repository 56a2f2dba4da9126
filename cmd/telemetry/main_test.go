package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/meteo-telemetry-service/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenLatestSlot_MemoryWhenUnset(t *testing.T) {
	opts, closeSlot, err := openLatestSlot(context.Background(), &config.Config{}, discardLogger())
	require.NoError(t, err)
	assert.Empty(t, opts)
	closeSlot()
}

func TestOpenLatestSlot_InvalidURL(t *testing.T) {
	_, _, err := openLatestSlot(context.Background(), &config.Config{RedisURL: "http://cache:6379"}, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse REDIS_URL")
}

func TestOpenStore_Memory(t *testing.T) {
	s, closeStore, err := openStore(context.Background(), &config.Config{StoreDriver: config.StoreMemory}, discardLogger())
	require.NoError(t, err)
	defer closeStore()
	require.NoError(t, s.CheckReadiness(context.Background()))
}
