package units

import "regexp"

// Quantity identifies which converter applies to a field.
type Quantity int

const (
	None Quantity = iota
	TemperatureQty
	PressureQty
	WindQty
	RainQty
	DirectionQty
)

func (q Quantity) String() string {
	switch q {
	case TemperatureQty:
		return "temperature"
	case PressureQty:
		return "pressure"
	case WindQty:
		return "wind"
	case RainQty:
		return "rain"
	case DirectionQty:
		return "direction"
	default:
		return "none"
	}
}

// DirectionField is the wind direction field code. It is formatted as degrees
// or a compass point and never unit-converted.
const DirectionField = "S"

var numberedTemperatureRe = regexp.MustCompile(`^(TSD|TS|T)\d+$`)

// ForField routes an uppercase field code to its physical quantity.
func ForField(field string) Quantity {
	switch field {
	case "T", "TMX", "TMN", "TIN":
		return TemperatureQty
	case "P":
		return PressureQty
	case "W", "G":
		return WindQty
	case "R", "RR":
		return RainQty
	case DirectionField:
		return DirectionQty
	}
	if numberedTemperatureRe.MatchString(field) {
		return TemperatureQty
	}
	return None
}

// Convert applies the converter for q. Quantities without a converter return
// v unchanged.
func Convert(q Quantity, v float64, from, to string) float64 {
	switch q {
	case TemperatureQty:
		return Temperature(v, from, to)
	case PressureQty:
		return Pressure(v, from, to)
	case WindQty:
		return WindSpeed(v, from, to)
	case RainQty:
		return Rain(v, from, to)
	default:
		return v
	}
}

// Set holds one unit per convertible quantity. An empty entry means no unit
// was chosen for that quantity.
type Set struct {
	Temperature Unit
	Pressure    Unit
	Wind        Unit
	Rain        Unit
}

// For returns the unit chosen for q.
func (s Set) For(q Quantity) Unit {
	switch q {
	case TemperatureQty:
		return s.Temperature
	case PressureQty:
		return s.Pressure
	case WindQty:
		return s.Wind
	case RainQty:
		return s.Rain
	default:
		return ""
	}
}

// Label returns the display symbol for u, e.g. "°C" or "km/h".
func Label(u Unit) string {
	switch u {
	case Celsius:
		return "°C"
	case Fahrenheit:
		return "°F"
	case HPa:
		return "hPa"
	case MB:
		return "mb"
	case InHg:
		return "inHg"
	case KPa:
		return "kPa"
	case MPS:
		return "m/s"
	case KMH:
		return "km/h"
	case MPH:
		return "mph"
	case Knot:
		return "kn"
	case MM:
		return "mm"
	case Inch:
		return "in"
	default:
		return string(u)
	}
}
