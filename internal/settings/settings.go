package settings

import (
	"strconv"
	"strings"

	"github.com/couchcryptid/meteo-telemetry-service/internal/allowlist"
	"github.com/couchcryptid/meteo-telemetry-service/internal/units"
)

// Option keys understood by Load.
const (
	KeyRetentionDays       = "retention_days"
	KeyTempUnit            = "temp_unit"
	KeyPressureUnit        = "pressure_unit"
	KeyWindUnit            = "wind_unit"
	KeyRainUnit            = "rain_unit"
	KeyIPAllowlistEnabled  = "ip_allowlist_enabled"
	KeyDNSAllowlistEnabled = "dns_allowlist_enabled"
	KeyIPAllowlist         = "ip_allowlist"
	KeyDNSAllowlist        = "dns_allowlist"
	KeySecretRequired      = "secret_required"
	KeySecret              = "secret"
)

// Retention bounds in days.
const (
	DefaultRetentionDays = 30
	MinRetentionDays     = 1
	MaxRetentionDays     = 3650
)

// Settings is the parsed view of a Provider.
type Settings struct {
	RetentionDays int

	// Units the station reports in.
	TempUnit     units.Unit
	PressureUnit units.Unit
	WindUnit     units.Unit
	RainUnit     units.Unit

	IPAllowlistEnabled  bool
	DNSAllowlistEnabled bool
	IPAllowlist         []string
	DNSAllowlist        []string

	SecretRequired bool
	Secret         string
}

// Defaults returns the settings used when a key is absent or malformed.
func Defaults() Settings {
	return Settings{
		RetentionDays: DefaultRetentionDays,
		TempUnit:      units.Celsius,
		PressureUnit:  units.HPa,
		WindUnit:      units.KMH,
		RainUnit:      units.MM,
	}
}

// Load reads every option from p. Malformed values fall back to their
// defaults; the retention window is clamped to its bounds.
func Load(p Provider) Settings {
	s := Defaults()

	if v, ok := p.Get(KeyRetentionDays); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			s.RetentionDays = min(max(n, MinRetentionDays), MaxRetentionDays)
		}
	}

	s.TempUnit = unitOption(p, KeyTempUnit, s.TempUnit)
	s.PressureUnit = unitOption(p, KeyPressureUnit, s.PressureUnit)
	s.WindUnit = unitOption(p, KeyWindUnit, s.WindUnit)
	s.RainUnit = unitOption(p, KeyRainUnit, s.RainUnit)

	s.IPAllowlistEnabled = boolOption(p, KeyIPAllowlistEnabled)
	s.DNSAllowlistEnabled = boolOption(p, KeyDNSAllowlistEnabled)
	if v, ok := p.Get(KeyIPAllowlist); ok {
		s.IPAllowlist = allowlist.ParseEntries(v)
	}
	if v, ok := p.Get(KeyDNSAllowlist); ok {
		s.DNSAllowlist = allowlist.ParseEntries(v)
	}

	s.SecretRequired = boolOption(p, KeySecretRequired)
	s.Secret, _ = p.Get(KeySecret)

	return s
}

// Allowlist returns the origin allowlist configuration.
func (s Settings) Allowlist() allowlist.Config {
	return allowlist.Config{
		IPEnabled:  s.IPAllowlistEnabled,
		IPEntries:  s.IPAllowlist,
		DNSEnabled: s.DNSAllowlistEnabled,
		Hostnames:  s.DNSAllowlist,
	}
}

// SourceUnits returns the units the station reports in.
func (s Settings) SourceUnits() units.Set {
	return units.Set{
		Temperature: s.TempUnit,
		Pressure:    s.PressureUnit,
		Wind:        s.WindUnit,
		Rain:        s.RainUnit,
	}
}

func unitOption(p Provider, key string, def units.Unit) units.Unit {
	v, ok := p.Get(key)
	if !ok {
		return def
	}
	if u, ok := units.Parse(v); ok {
		return u
	}
	return def
}

func boolOption(p Provider, key string) bool {
	v, ok := p.Get(key)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
