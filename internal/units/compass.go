package units

import "math"

var compassPoints = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// NormalizeDegrees maps any angle into [0, 360).
func NormalizeDegrees(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	// -0.0 and values that round up to 360 after Mod.
	if d >= 360 || d == 0 {
		return 0
	}
	return d
}

// Compass returns the nearest of the 16 compass points for a bearing in
// degrees. Buckets are 22.5° wide and centred on each point, so 348.75° and
// above wrap to "N".
func Compass(deg float64) string {
	idx := int(math.Round(NormalizeDegrees(deg)/22.5)) % len(compassPoints)
	return compassPoints[idx]
}
