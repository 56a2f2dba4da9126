package domain

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// decimalCommaRe matches values like "21,5" or "-0,25".
var decimalCommaRe = regexp.MustCompile(`^-?\d+,\d+$`)

// Normalize filters a raw station payload down to recognized fields.
//
// Keys are upper-cased, unrecognized keys and the secret are dropped, decimal
// commas become decimal points, SW is truncated, and a missing or non-integer
// U is replaced with now in epoch seconds.
func Normalize(raw map[string]string, now time.Time) Fields {
	// Sorted so that when "T" and "t" both arrive the uppercase spelling wins.
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(Fields, len(raw)+1)
	for _, k := range keys {
		key := strings.ToUpper(strings.TrimSpace(k))
		if _, seen := out[key]; seen {
			continue
		}
		if _, ok := ClassifyField(key); !ok {
			continue
		}
		v := strings.TrimSpace(raw[k])
		if decimalCommaRe.MatchString(v) {
			v = strings.Replace(v, ",", ".", 1)
		}
		if key == FieldStationID {
			v = truncateRunes(v, maxStationIDLen)
		}
		out[key] = Value(v)
	}

	if _, err := strconv.ParseInt(string(out[FieldStationTime]), 10, 64); err != nil {
		out[FieldStationTime] = Value(strconv.FormatInt(now.Unix(), 10))
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
