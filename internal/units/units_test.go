package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const tolerance = 0.01

func TestTemperature(t *testing.T) {
	tests := []struct {
		name     string
		v        float64
		from, to string
		want     float64
	}{
		{"freezing C to F", 0, "C", "F", 32},
		{"boiling C to F", 100, "C", "F", 212},
		{"F to C", 212, "F", "C", 100},
		{"negative F to C", -40, "F", "C", -40},
		{"fractional", 21.5, "C", "F", 70.7},
		{"alias spelling", 50, "°F", "celsius", 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Temperature(tt.v, tt.from, tt.to), tolerance)
		})
	}
}

func TestPressure(t *testing.T) {
	assert.InDelta(t, 29.92, Pressure(1013.25, "hPa", "inHg"), tolerance)
	assert.InDelta(t, 101.325, Pressure(1013.25, "hPa", "kPa"), tolerance)
	assert.InDelta(t, 1013.25, Pressure(1013.25, "mb", "hPa"), tolerance)
	assert.InDelta(t, 1015.92, Pressure(30, "inHg", "hPa"), tolerance)
}

func TestWindSpeed(t *testing.T) {
	assert.InDelta(t, 2.78, WindSpeed(10, "kmh", "mps"), tolerance)
	assert.InDelta(t, 4.17, WindSpeed(15, "kmh", "mps"), tolerance)
	assert.InDelta(t, 16.09, WindSpeed(10, "mph", "kmh"), tolerance)
	assert.InDelta(t, 5.14, WindSpeed(10, "knots", "m/s"), tolerance)
	assert.InDelta(t, 19.44, WindSpeed(10, "mps", "kt"), tolerance)
}

func TestRain(t *testing.T) {
	assert.InDelta(t, 25.4, Rain(1, "in", "mm"), tolerance)
	assert.InDelta(t, 0.39, Rain(10, "mm", "inches"), tolerance)
}

func TestUnknownUnitIsIdentity(t *testing.T) {
	assert.Equal(t, 12.3456, Temperature(12.3456, "K", "C"))
	assert.Equal(t, 12.3456, Pressure(12.3456, "hPa", "psi"))
	assert.Equal(t, 12.3456, WindSpeed(12.3456, "beaufort", "mps"))
	assert.Equal(t, 12.3456, Rain(12.3456, "mm", ""))
	// A valid token for the wrong quantity is unknown to that converter.
	assert.Equal(t, 12.3456, Rain(12.3456, "mm", "kmh"))
	assert.Equal(t, 12.3456, Temperature(12.3456, "C", "hPa"))
}

func TestSameUnitRoundsToTwoDecimals(t *testing.T) {
	values := []float64{0, 1.005, -3.14159, 1013.256, 99.999}
	pairs := []struct {
		unit string
		fn   func(float64, string, string) float64
	}{
		{"C", Temperature}, {"F", Temperature},
		{"hPa", Pressure}, {"inHg", Pressure}, {"kPa", Pressure}, {"mb", Pressure},
		{"mps", WindSpeed}, {"kmh", WindSpeed}, {"mph", WindSpeed}, {"kn", WindSpeed},
		{"mm", Rain}, {"in", Rain},
	}
	for _, p := range pairs {
		for _, v := range values {
			assert.Equal(t, Round2(v), p.fn(v, p.unit, p.unit), "unit %s value %v", p.unit, v)
		}
	}
}

// Round trips start from the coarser unit so two-decimal rounding of the
// intermediate value cannot lose more than the tolerance.
func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name         string
		fn           func(float64, string, string) float64
		coarse, fine string
		values       []float64
	}{
		{"temperature", Temperature, "C", "F", []float64{-12.4, 0, 21.37, 38.9}},
		{"pressure inHg", Pressure, "inHg", "hPa", []float64{28.5, 29.92, 30.12}},
		{"pressure kPa", Pressure, "kPa", "hPa", []float64{95.5, 101.33}},
		{"wind mph", WindSpeed, "mph", "kmh", []float64{0, 7.5, 42.1}},
		{"wind knots", WindSpeed, "kn", "kmh", []float64{3.3, 12.8}},
		{"wind mps", WindSpeed, "mps", "kmh", []float64{2.78, 15}},
		{"rain", Rain, "in", "mm", []float64{0.01, 0.5, 2.35}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, v := range tt.values {
				there := tt.fn(v, tt.coarse, tt.fine)
				back := tt.fn(there, tt.fine, tt.coarse)
				assert.InDelta(t, v, back, tolerance, "value %v via %v", v, there)
			}
		})
	}
}

func TestParseAliases(t *testing.T) {
	for token, want := range map[string]Unit{
		" KM/H ": KMH, "Kph": KMH, "M/S": MPS, "knots": Knot, "InHg": InHg, "MBAR": MB, "Inches": Inch,
	} {
		got, ok := Parse(token)
		assert.True(t, ok, token)
		assert.Equal(t, want, got, token)
	}
	_, ok := Parse("furlongs")
	assert.False(t, ok)
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 2.8, RoundTo(2.777, 1))
	assert.Equal(t, 3.0, RoundTo(2.777, 0))
	assert.Equal(t, 3.0, RoundTo(2.777, -2))
	assert.Equal(t, 2.777, RoundTo(2.777, 3))
}
