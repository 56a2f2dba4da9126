// Package redis shares the latest-reading cache slot between service
// replicas through a Redis hash.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/couchcryptid/meteo-telemetry-service/internal/store"
)

const (
	fieldID  = "id"
	fieldRaw = "fields"
)

// setIfNewer writes the entry unless the stored one has a higher id.
// KEYS[1] slot key, ARGV[1] id, ARGV[2] fields, ARGV[3] ttl in ms.
var setIfNewer = goredis.NewScript(`
local cur = redis.call("HGET", KEYS[1], "id")
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call("HSET", KEYS[1], "id", ARGV[1], "fields", ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return 1
`)

var errMalformedEntry = errors.New("malformed latest entry")

// Slot implements store.Slot on a single Redis key.
type Slot struct {
	client *goredis.Client
	key    string
	ttl    time.Duration
}

var _ store.Slot = (*Slot)(nil)

// NewSlot stores the entry under "<prefix>:latest" with the given lifetime.
func NewSlot(client *goredis.Client, prefix string, ttl time.Duration) *Slot {
	return &Slot{client: client, key: Key(prefix), ttl: ttl}
}

// Key is the Redis key holding the latest entry for prefix.
func Key(prefix string) string {
	return prefix + ":latest"
}

func (s *Slot) Get(ctx context.Context) (store.LatestEntry, bool, error) {
	vals, err := s.client.HMGet(ctx, s.key, fieldID, fieldRaw).Result()
	if err != nil {
		return store.LatestEntry{}, false, err
	}
	return parseEntry(vals)
}

func (s *Slot) Set(ctx context.Context, e store.LatestEntry) error {
	ms := s.ttl.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return setIfNewer.Run(ctx, s.client, []string{s.key}, e.ID, e.Raw, ms).Err()
}

func (s *Slot) Delete(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

// parseEntry decodes an HMGET reply. A missing key yields nil values.
func parseEntry(vals []interface{}) (store.LatestEntry, bool, error) {
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return store.LatestEntry{}, false, nil
	}
	idStr, ok := vals[0].(string)
	if !ok {
		return store.LatestEntry{}, false, errMalformedEntry
	}
	raw, ok := vals[1].(string)
	if !ok {
		return store.LatestEntry{}, false, errMalformedEntry
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return store.LatestEntry{}, false, fmt.Errorf("%w: id %q", errMalformedEntry, idStr)
	}
	return store.LatestEntry{ID: id, Raw: []byte(raw)}, true, nil
}
