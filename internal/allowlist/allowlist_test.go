package allowlist

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/netip"
	"testing"

	"github.com/couchcryptid/meteo-telemetry-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock resolver ---

type fakeResolver struct {
	hosts map[string][]string
	fail  map[string]bool
	calls []string
}

func (f *fakeResolver) Resolve(_ context.Context, host string) ([]netip.Addr, error) {
	f.calls = append(f.calls, host)
	if f.fail[host] {
		return nil, errors.New("no such host")
	}
	var out []netip.Addr
	for _, s := range f.hosts[host] {
		out = append(out, netip.MustParseAddr(s))
	}
	return out, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMatcher(r Resolver) *Matcher {
	return NewMatcher(r, discardLogger())
}

// --- tests ---

func TestCheck_NothingEnabledAllowsAnything(t *testing.T) {
	m := newMatcher(nil)

	d, err := m.Check(context.Background(), "definitely not an address", Config{})
	require.NoError(t, err)
	assert.True(t, d.Allowed())
	assert.False(t, d.IPChecked)
	assert.False(t, d.DNSChecked)
}

func TestCheck_InvalidAddress(t *testing.T) {
	m := newMatcher(nil)

	_, err := m.Check(context.Background(), "bogus", Config{IPEnabled: true, IPEntries: []string{"0.0.0.0/0"}})
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidAddress, domain.KindOf(err))
}

func TestCheck_IPAllowlist(t *testing.T) {
	m := newMatcher(nil)
	cfg := Config{IPEnabled: true, IPEntries: []string{"192.0.2.0/24"}}

	d, err := m.Check(context.Background(), "192.0.2.5:5555", cfg)
	require.NoError(t, err)
	assert.True(t, d.IPAllowed)

	d, err = m.Check(context.Background(), "192.0.3.5", cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrOriginDenied))
	assert.False(t, d.Allowed())
	assert.Equal(t, []string{"ip"}, d.Failed())
}

func TestCheck_EmptyListFailsClosed(t *testing.T) {
	m := newMatcher(&fakeResolver{})

	_, err := m.Check(context.Background(), "192.0.2.5", Config{IPEnabled: true})
	assert.Equal(t, domain.KindOriginDenied, domain.KindOf(err))

	_, err = m.Check(context.Background(), "192.0.2.5", Config{DNSEnabled: true})
	assert.Equal(t, domain.KindOriginDenied, domain.KindOf(err))
}

func TestCheck_DNSAllowlist(t *testing.T) {
	r := &fakeResolver{
		hosts: map[string][]string{
			"a.example.net": {"203.0.113.1"},
			"b.example.net": {"2001:db8::5", "198.51.100.7"},
		},
		fail: map[string]bool{"broken.example.net": true},
	}
	m := newMatcher(r)
	cfg := Config{DNSEnabled: true, Hostnames: []string{"broken.example.net", "a.example.net", "b.example.net"}}

	d, err := m.Check(context.Background(), "198.51.100.7", cfg)
	require.NoError(t, err)
	assert.True(t, d.DNSAllowed)
	assert.Equal(t, []string{"broken.example.net", "a.example.net", "b.example.net"}, r.calls,
		"a failing hostname must not stop later hostnames from being checked")

	d, err = m.Check(context.Background(), "[2001:db8::5]:80", cfg)
	require.NoError(t, err)
	assert.True(t, d.DNSAllowed)

	d, err = m.Check(context.Background(), "192.0.2.99", cfg)
	require.Error(t, err)
	assert.Equal(t, []string{"dns"}, d.Failed())
}

func TestCheck_BothEnabledRequiresBoth(t *testing.T) {
	r := &fakeResolver{hosts: map[string][]string{"station.example.net": {"192.0.2.5"}}}
	m := newMatcher(r)
	cfg := Config{
		IPEnabled:  true,
		IPEntries:  []string{"192.0.2.0/24"},
		DNSEnabled: true,
		Hostnames:  []string{"station.example.net"},
	}

	d, err := m.Check(context.Background(), "192.0.2.5", cfg)
	require.NoError(t, err)
	assert.True(t, d.Allowed())

	// In the CIDR but not resolved by DNS.
	d, err = m.Check(context.Background(), "192.0.2.6", cfg)
	require.Error(t, err)
	assert.True(t, d.IPAllowed)
	assert.False(t, d.DNSAllowed)
	assert.Equal(t, []string{"dns"}, d.Failed())

	// Resolved by DNS but outside the CIDR.
	cfg.IPEntries = []string{"10.0.0.0/8"}
	d, err = m.Check(context.Background(), "192.0.2.5", cfg)
	require.Error(t, err)
	assert.False(t, d.IPAllowed)
	assert.True(t, d.DNSAllowed)
	assert.Contains(t, err.Error(), "ip allowlist")
}

func TestCheck_DNSWithoutResolverDenies(t *testing.T) {
	m := newMatcher(nil)

	ok, err := m.IsAllowed(context.Background(), "192.0.2.5", Config{DNSEnabled: true, Hostnames: []string{"x.example.net"}})
	require.Error(t, err)
	assert.False(t, ok)
}

func TestIsAllowed(t *testing.T) {
	m := newMatcher(nil)

	ok, err := m.IsAllowed(context.Background(), "192.0.2.5", Config{IPEnabled: true, IPEntries: []string{"192.0.2.5"}})
	require.NoError(t, err)
	assert.True(t, ok)
}
