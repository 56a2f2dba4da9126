// Command validate checks the Meteobridge mock fixtures against the live
// domain and units packages: payload shape, normalization, the optional
// normalized fixture, unit conversion round trips, and compass mapping.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -pushes data/mock/meteobridge_pushes.json \
//	  -normalized data/mock/meteobridge_normalized.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/couchcryptid/meteo-telemetry-service/internal/domain"
	"github.com/couchcryptid/meteo-telemetry-service/internal/units"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// roundTrip names the alternate unit each quantity is converted through and
// the drift allowed after two rounded conversions.
var roundTrip = map[units.Quantity]struct {
	via       units.Unit
	tolerance float64
}{
	units.TemperatureQty: {via: units.Fahrenheit, tolerance: 0.02},
	units.PressureQty:    {via: units.KPa, tolerance: 0.06},
	units.WindQty:        {via: units.KMH, tolerance: 0.02},
	units.RainQty:        {via: units.Inch, tolerance: 0.13},
}

var baseUnits = units.Set{
	Temperature: units.Celsius,
	Pressure:    units.HPa,
	Wind:        units.MPS,
	Rain:        units.MM,
}

func main() {
	pushesPath := flag.String("pushes", "", "path to the raw push fixture")
	normalizedPath := flag.String("normalized", "", "optional path to the normalized fixture")
	flag.Parse()

	if *pushesPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*pushesPath, *normalizedPath); code != 0 {
		os.Exit(code)
	}
}

func run(pushesPath, normalizedPath string) int {
	fmt.Println("=== Meteobridge Fixture Validation ===")
	fmt.Println()

	pushes, err := loadJSON[map[string]string](pushesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load pushes: %v\n", err)
		return 1
	}

	// A fixed fallback time; pushes without U would otherwise be stamped with now.
	fallback := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	normalized := make([]domain.Fields, len(pushes))
	for i, p := range pushes {
		normalized[i] = domain.Normalize(p, fallback)
	}

	phases := []*phase{
		validatePayloadShape(pushes),
		validateNormalization(pushes, normalized),
		validateUnitRoundTrips(normalized),
		validateCompass(normalized),
	}
	if normalizedPath != "" {
		expected, err := loadJSON[domain.Fields](normalizedPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load normalized fixture: %v\n", err)
			return 1
		}
		phases = append(phases, validateNormalizedFixture(expected, normalized))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Pushes: %d, dropped keys: %s\n", len(pushes), strings.Join(droppedKeys(pushes, normalized), ", "))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadJSON[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ── Phase 1: Payload shape ──

func validatePayloadShape(pushes []map[string]string) *phase {
	p := &phase{name: "Phase 1: Payload shape"}
	if len(pushes) == 0 {
		p.errorf("fixture is empty")
	}

	var lastU int64
	for i, push := range pushes {
		if push[domain.FieldStationID] == "" {
			p.errorf("push %d: missing SW", i)
		}
		u, err := strconv.ParseInt(push[domain.FieldStationTime], 10, 64)
		if err != nil {
			p.errorf("push %d: U %q is not an integer", i, push[domain.FieldStationTime])
			continue
		}
		if u <= lastU {
			p.errorf("push %d: U %d does not advance past %d", i, u, lastU)
		}
		lastU = u
	}
	return p
}

// ── Phase 2: Normalization ──

func validateNormalization(pushes []map[string]string, normalized []domain.Fields) *phase {
	p := &phase{name: "Phase 2: Normalization"}

	for i, fields := range normalized {
		if _, ok := fields[domain.FieldSecret]; ok {
			p.errorf("push %d: secret survived normalization", i)
		}
		if fields[domain.FieldStationTime] != domain.Value(pushes[i][domain.FieldStationTime]) {
			p.errorf("push %d: U changed from %q to %q", i, pushes[i][domain.FieldStationTime], fields[domain.FieldStationTime])
		}
		for key, v := range fields {
			if _, ok := domain.ClassifyField(key); !ok {
				p.errorf("push %d: field %q is not allowlisted", i, key)
			}
			if key == domain.FieldStationID {
				continue
			}
			if strings.Contains(string(v), ",") {
				p.errorf("push %d: %s=%q still has a decimal comma", i, key, v)
			}
			if _, ok := v.Float(); !ok {
				p.errorf("push %d: %s=%q is not numeric", i, key, v)
			}
		}
	}
	return p
}

// ── Phase 3: Unit round trips ──

func validateUnitRoundTrips(normalized []domain.Fields) *phase {
	p := &phase{name: "Phase 3: Unit round trips"}

	for i, fields := range normalized {
		for key, v := range fields {
			q := units.ForField(key)
			rt, ok := roundTrip[q]
			if !ok {
				continue
			}
			x, ok := v.Float()
			if !ok {
				continue
			}
			base := string(baseUnits.For(q))
			there := units.Convert(q, x, base, string(rt.via))
			back := units.Convert(q, there, string(rt.via), base)
			if math.Abs(back-x) > rt.tolerance {
				p.errorf("push %d: %s %v %s -> %v %s -> %v", i, key, x, base, there, rt.via, back)
			}
		}
	}
	return p
}

// ── Phase 4: Compass ──

func validateCompass(normalized []domain.Fields) *phase {
	p := &phase{name: "Phase 4: Wind direction"}

	for i, fields := range normalized {
		v, ok := fields[units.DirectionField]
		if !ok {
			continue
		}
		deg, ok := v.Float()
		if !ok {
			p.errorf("push %d: S=%q is not numeric", i, v)
			continue
		}
		if deg < 0 || deg >= 360 {
			p.errorf("push %d: S=%v outside [0, 360)", i, deg)
		}
		if units.Compass(deg) == "" {
			p.errorf("push %d: no compass point for %v", i, deg)
		}
	}
	return p
}

// ── Phase 5: Normalized fixture ──

func validateNormalizedFixture(expected, actual []domain.Fields) *phase {
	p := &phase{name: "Phase 5: Normalized fixture parity"}

	if len(expected) != len(actual) {
		p.errorf("count: fixture has %d entries, pushes normalize to %d", len(expected), len(actual))
		return p
	}
	for i := range expected {
		if diff := cmp.Diff(expected[i], actual[i]); diff != "" {
			p.errorf("push %d mismatch (-fixture +normalized):\n%s", i, diff)
		}
	}
	return p
}

func droppedKeys(pushes []map[string]string, normalized []domain.Fields) []string {
	seen := map[string]struct{}{}
	for i, push := range pushes {
		for k := range push {
			if _, ok := normalized[i][strings.ToUpper(k)]; !ok {
				seen[k] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
