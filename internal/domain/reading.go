package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"net/netip"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Value is a single telemetry value as pushed by the station. It serializes
// as a JSON number when it parses as one and as a string otherwise.
type Value string

// Float parses the value as a finite float64.
func (v Value) Float() (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func (v Value) MarshalJSON() ([]byte, error) {
	if f, ok := v.Float(); ok {
		return json.Marshal(f)
	}
	return json.Marshal(string(v))
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = Value(n.String())
	}
	return nil
}

// Fields maps uppercase field codes to values.
type Fields map[string]Value

// Keys returns the field codes in sorted order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Select returns the subset of f named by keys, matched case-insensitively.
// An empty key list selects every field. Unknown keys are ignored.
func (f Fields) Select(keys []string) Fields {
	if len(keys) == 0 {
		return f.Clone()
	}
	out := make(Fields, len(keys))
	for _, k := range keys {
		k = strings.ToUpper(strings.TrimSpace(k))
		if v, ok := f[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Clone returns a shallow copy.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Reading is one ingested telemetry snapshot.
type Reading struct {
	ID              int64
	ReceivedAt      time.Time
	StationUnixTime int64
	StationID       string
	// ClientAddress is the sender's address; the zero Addr means it could not be parsed.
	ClientAddress netip.Addr
	Fields        Fields
}

// NewReading builds a reading from normalized fields. The station time and
// identifier are lifted from the U and SW fields.
func NewReading(fields Fields, clientAddr netip.Addr, receivedAt time.Time) Reading {
	r := Reading{
		ReceivedAt:    receivedAt.UTC(),
		ClientAddress: clientAddr,
		Fields:        fields,
	}
	if u, err := strconv.ParseInt(string(fields[FieldStationTime]), 10, 64); err == nil {
		r.StationUnixTime = u
	} else {
		r.StationUnixTime = receivedAt.Unix()
	}
	r.StationID = string(fields[FieldStationID])
	return r
}

// ParseClientAddress parses a client address, accepting an optional port and
// IPv6 zone. IPv4-mapped IPv6 addresses are reduced to plain IPv4 so both forms
// compare equal.
func ParseClientAddress(s string) (netip.Addr, error) {
	s = strings.TrimSpace(s)
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().WithZone("").Unmap(), nil
	}
	addr, err := netip.ParseAddr(strings.Trim(s, "[]"))
	if err != nil {
		return netip.Addr{}, NewError(KindInvalidAddress, "invalid client address "+strconv.Quote(s), err)
	}
	return addr.WithZone("").Unmap(), nil
}
