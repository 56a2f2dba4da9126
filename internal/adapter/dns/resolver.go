package dns

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/couchcryptid/meteo-telemetry-service/internal/observability"
)

// lookuper is the subset of *net.Resolver used here.
type lookuper interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Resolver implements allowlist.Resolver with forward A/AAAA lookups.
type Resolver struct {
	lookup  lookuper
	timeout time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewResolver creates a resolver backed by the system DNS configuration.
// Each lookup is bounded by timeout.
func NewResolver(timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Resolver {
	return &Resolver{
		lookup:  net.DefaultResolver,
		timeout: timeout,
		metrics: metrics,
		logger:  logger,
	}
}

// Resolve returns every IPv4 and IPv6 address for host, unmapped so IPv4
// results compare equal to IPv4 client addresses.
func (r *Resolver) Resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	addrs, err := r.lookup.LookupNetIP(ctx, "ip", host)
	r.metrics.DNSLookupDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		r.metrics.DNSLookups.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		r.metrics.DNSLookups.WithLabelValues("empty").Inc()
		return nil, nil
	}
	r.metrics.DNSLookups.WithLabelValues("success").Inc()

	out := make([]netip.Addr, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.WithZone("").Unmap())
	}
	r.logger.Debug("resolved allowlist host", "host", host, "addrs", len(out))
	return out, nil
}
