// Package allowlist decides whether a client network address may push
// telemetry, based on IP/CIDR entries and on the resolved addresses of
// configured hostnames.
package allowlist

import (
	"context"
	"log/slog"
	"net/netip"
	"strings"

	"github.com/couchcryptid/meteo-telemetry-service/internal/domain"
)

// Resolver performs forward lookups (A and AAAA) for a hostname.
type Resolver interface {
	Resolve(ctx context.Context, host string) ([]netip.Addr, error)
}

// Config selects which checks run and what they match against.
type Config struct {
	IPEnabled  bool
	IPEntries  []string
	DNSEnabled bool
	Hostnames  []string
}

// Enabled reports whether any check is active.
func (c Config) Enabled() bool {
	return c.IPEnabled || c.DNSEnabled
}

// Decision records the outcome of each check independently.
type Decision struct {
	IPChecked  bool
	IPAllowed  bool
	DNSChecked bool
	DNSAllowed bool
}

// Allowed is true when every enabled check passed.
func (d Decision) Allowed() bool {
	return (!d.IPChecked || d.IPAllowed) && (!d.DNSChecked || d.DNSAllowed)
}

// Failed lists the checks that denied the client, e.g. ["ip", "dns"].
func (d Decision) Failed() []string {
	var out []string
	if d.IPChecked && !d.IPAllowed {
		out = append(out, "ip")
	}
	if d.DNSChecked && !d.DNSAllowed {
		out = append(out, "dns")
	}
	return out
}

// Matcher evaluates client addresses against a Config.
type Matcher struct {
	resolver Resolver
	logger   *slog.Logger
}

// NewMatcher creates a Matcher. resolver may be nil when DNS checks are never
// enabled; an enabled DNS check without a resolver denies.
func NewMatcher(resolver Resolver, logger *slog.Logger) *Matcher {
	return &Matcher{resolver: resolver, logger: logger}
}

// Check evaluates clientAddr against cfg. With no check enabled every client
// is allowed, even one whose address does not parse. Otherwise an unparsable
// address fails with domain.ErrInvalidAddress, and a denied client fails with
// domain.ErrOriginDenied. The Decision is returned in both cases.
func (m *Matcher) Check(ctx context.Context, clientAddr string, cfg Config) (Decision, error) {
	var d Decision
	if !cfg.Enabled() {
		return d, nil
	}

	addr, err := domain.ParseClientAddress(clientAddr)
	if err != nil {
		return d, err
	}

	if cfg.IPEnabled {
		d.IPChecked = true
		d.IPAllowed = MatchIP(addr, cfg.IPEntries)
	}
	if cfg.DNSEnabled {
		d.DNSChecked = true
		d.DNSAllowed = m.matchDNS(ctx, addr, cfg.Hostnames)
	}

	if !d.Allowed() {
		msg := "origin " + addr.String() + " denied by " + strings.Join(d.Failed(), " and ") + " allowlist"
		return d, domain.NewError(domain.KindOriginDenied, msg, nil)
	}
	return d, nil
}

// IsAllowed is Check reduced to a boolean.
func (m *Matcher) IsAllowed(ctx context.Context, clientAddr string, cfg Config) (bool, error) {
	d, err := m.Check(ctx, clientAddr, cfg)
	if err != nil {
		return false, err
	}
	return d.Allowed(), nil
}

func (m *Matcher) matchDNS(ctx context.Context, addr netip.Addr, hostnames []string) bool {
	if m.resolver == nil {
		return false
	}
	for _, host := range hostnames {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}
		resolved, err := m.resolver.Resolve(ctx, host)
		if err != nil {
			// One failing hostname must not abort the others.
			m.logger.Warn("allowlist hostname resolution failed", "host", host, "error", err)
			continue
		}
		for _, r := range resolved {
			if r.Unmap() == addr {
				return true
			}
		}
	}
	return false
}
