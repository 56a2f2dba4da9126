// Package units converts weather-station readings between measurement units.
//
// Every conversion canonicalizes through a base unit per quantity:
//
//	Temperature: degrees Celsius
//	Pressure:    hectopascal (mb is an alias of hPa)
//	Wind speed:  metres per second
//	Rain depth:  millimetres
//
// Results are rounded to two decimal places. An unrecognized source or
// destination unit returns the input unchanged rather than failing, because
// display surfaces pass user-supplied tokens straight through.
package units

import (
	"math"
	"strings"
)

// Unit is a normalized unit token, e.g. "hpa" or "kmh".
type Unit string

const (
	Celsius    Unit = "c"
	Fahrenheit Unit = "f"

	HPa  Unit = "hpa"
	MB   Unit = "mb"
	InHg Unit = "inhg"
	KPa  Unit = "kpa"

	MPS  Unit = "mps"
	KMH  Unit = "kmh"
	MPH  Unit = "mph"
	Knot Unit = "kn"

	MM   Unit = "mm"
	Inch Unit = "in"
)

const (
	hPaPerInHg = 33.8638866667
	hPaPerKPa  = 10.0
	mpsPerKMH  = 1 / 3.6
	mpsPerMPH  = 0.44704
	mpsPerKnot = 0.514444
	mmPerInch  = 25.4
)

// aliases maps accepted spellings to their canonical token. Lookups are
// case-insensitive and ignore surrounding whitespace.
var aliases = map[string]Unit{
	"c": Celsius, "°c": Celsius, "celsius": Celsius,
	"f": Fahrenheit, "°f": Fahrenheit, "fahrenheit": Fahrenheit,

	"hpa": HPa, "mb": MB, "mbar": MB, "inhg": InHg, "kpa": KPa,

	"mps": MPS, "m/s": MPS, "ms": MPS,
	"kmh": KMH, "km/h": KMH, "kph": KMH,
	"mph": MPH,
	"kn":  Knot, "kt": Knot, "kts": Knot, "knot": Knot, "knots": Knot,

	"mm": MM,
	"in": Inch, "inch": Inch, "inches": Inch,
}

// Parse normalizes a unit token. The second result is false when the token is
// not recognized.
func Parse(s string) (Unit, bool) {
	u, ok := aliases[strings.ToLower(strings.TrimSpace(s))]
	return u, ok
}

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	return RoundTo(v, 2)
}

// RoundTo rounds v to the given number of decimal places. Negative counts are
// treated as zero.
func RoundTo(v float64, decimals int) float64 {
	if decimals < 0 {
		decimals = 0
	}
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// Temperature converts between Celsius and Fahrenheit.
func Temperature(v float64, from, to string) float64 {
	src, okSrc := Parse(from)
	dst, okDst := Parse(to)
	if !okSrc || !okDst || !isTemperature(src) || !isTemperature(dst) {
		return v
	}
	if src == dst {
		return Round2(v)
	}
	c := v
	if src == Fahrenheit {
		c = (v - 32) * 5 / 9
	}
	if dst == Fahrenheit {
		return Round2(c*9/5 + 32)
	}
	return Round2(c)
}

// Pressure converts between hPa, mb, inHg, and kPa.
func Pressure(v float64, from, to string) float64 {
	return viaBase(v, from, to, pressureFactors)
}

// WindSpeed converts between m/s, km/h, mph, and knots.
func WindSpeed(v float64, from, to string) float64 {
	return viaBase(v, from, to, windFactors)
}

// Rain converts rain depth (or rate) between millimetres and inches.
func Rain(v float64, from, to string) float64 {
	return viaBase(v, from, to, rainFactors)
}

// Factors from each unit to the quantity's base unit.
var (
	pressureFactors = map[Unit]float64{HPa: 1, MB: 1, InHg: hPaPerInHg, KPa: hPaPerKPa}
	windFactors     = map[Unit]float64{MPS: 1, KMH: mpsPerKMH, MPH: mpsPerMPH, Knot: mpsPerKnot}
	rainFactors     = map[Unit]float64{MM: 1, Inch: mmPerInch}
)

func viaBase(v float64, from, to string, factors map[Unit]float64) float64 {
	src, okSrc := Parse(from)
	dst, okDst := Parse(to)
	if !okSrc || !okDst {
		return v
	}
	fs, okSrc := factors[src]
	fd, okDst := factors[dst]
	if !okSrc || !okDst {
		return v
	}
	if src == dst {
		return Round2(v)
	}
	return Round2(v * fs / fd)
}

func isTemperature(u Unit) bool {
	return u == Celsius || u == Fahrenheit
}
