package domain

import "regexp"

// Field codes with special handling during ingest.
const (
	FieldSecret      = "PASS"
	FieldStationTime = "U"
	FieldStationID   = "SW"
)

// maxStationIDLen bounds the SW field, counted in characters.
const maxStationIDLen = 64

// exactFields is the fixed vocabulary of single-sensor field codes.
var exactFields = map[string]struct{}{
	"T":   {}, // outdoor temperature
	"TMX": {}, // daily max temperature
	"TMN": {}, // daily min temperature
	"H":   {}, // outdoor humidity
	"P":   {}, // sea-level pressure
	"W":   {}, // wind speed
	"G":   {}, // wind gust
	"B":   {}, // wind bearing
	"S":   {}, // wind direction, degrees
	"R":   {}, // rain total
	"RR":  {}, // rain rate
	"UV":  {}, // UV index
	"SS":  {}, // sunshine
	"CC":  {}, // cloud cover
	"TIN": {}, // indoor temperature
	"HIN": {}, // indoor humidity
	"SN":  {}, // new snow
	"SD":  {}, // snow depth
	"L":   {}, // leaf wetness
	"NL":  {}, // leaf wetness, normalized
	"SW":  {}, // station identifier
	"U":   {}, // station epoch seconds
}

// FieldRule is one predicate in the field allowlist.
type FieldRule struct {
	Name  string
	Match func(key string) bool
}

func patternRule(name, expr string) FieldRule {
	re := regexp.MustCompile(expr)
	return FieldRule{Name: name, Match: re.MatchString}
}

// fieldRules are evaluated in order; the first match wins. Longer prefixes
// come before the shorter ones they could be confused with (TSD before TS
// before T).
var fieldRules = []FieldRule{
	{Name: "exact", Match: func(key string) bool {
		_, ok := exactFields[key]
		return ok
	}},
	patternRule("TSD<n>", `^TSD\d+$`),
	patternRule("TS<n>", `^TS\d+$`),
	patternRule("T<n>", `^T\d+$`),
	patternRule("H<n>", `^H\d+$`),
	patternRule("LW<n>", `^LW\d+$`),
	patternRule("LT<n>", `^LT\d+$`),
	patternRule("SM<n>", `^SM\d+$`),
	patternRule("GAS_<n>", `^(CO2|NO2|CO|SO2|O3)_\d+$`),
	patternRule("PP<n>", `^PP\d+$`),
	patternRule("<ALNUM>BAT", `^[A-Z0-9]+BAT$`),
}

// ClassifyField reports which allowlist rule accepts an uppercase key. The
// secret field is never accepted.
func ClassifyField(key string) (string, bool) {
	if key == FieldSecret {
		return "", false
	}
	for _, r := range fieldRules {
		if r.Match(key) {
			return r.Name, true
		}
	}
	return "", false
}
