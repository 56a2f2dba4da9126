package dns

import (
	"context"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/meteo-telemetry-service/internal/allowlist"
	"github.com/couchcryptid/meteo-telemetry-service/internal/cache"
	"github.com/couchcryptid/meteo-telemetry-service/internal/observability"
)

// DefaultCacheTTL is how long a hostname's resolution is reused.
const DefaultCacheTTL = 300 * time.Second

// CachedResolver wraps a Resolver with a per-hostname TTL cache. Failed
// lookups are cached as empty results so an unreachable DNS server is not
// queried on every push.
type CachedResolver struct {
	inner   allowlist.Resolver
	cache   *cache.TTL[string, []netip.Addr]
	group   singleflight.Group
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewCachedResolver creates a cache decorator around a resolver.
func NewCachedResolver(inner allowlist.Resolver, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *CachedResolver {
	return &CachedResolver{
		inner:   inner,
		cache:   cache.NewTTL[string, []netip.Addr](ttl, clock),
		metrics: metrics,
		logger:  logger,
	}
}

// Resolve never returns an error: a failed lookup degrades to no addresses.
// Hostnames are matched case-insensitively. Concurrent misses for the same
// host share one lookup, which outlives the cancellation of any one caller.
func (c *CachedResolver) Resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	host = strings.ToLower(strings.TrimSpace(host))
	if addrs, ok := c.cache.Get(host); ok {
		c.metrics.DNSCache.WithLabelValues("hit").Inc()
		return addrs, nil
	}
	c.metrics.DNSCache.WithLabelValues("miss").Inc()

	lookupCtx := context.WithoutCancel(ctx)
	v, _, _ := c.group.Do(host, func() (any, error) {
		if addrs, ok := c.cache.Get(host); ok {
			return addrs, nil
		}
		addrs, err := c.inner.Resolve(lookupCtx, host)
		if err != nil {
			c.logger.Warn("allowlist hostname lookup failed, caching empty result", "host", host, "error", err)
			addrs = nil
		}
		c.cache.Set(host, addrs)
		return addrs, nil
	})
	addrs, _ := v.([]netip.Addr)
	return addrs, nil
}
