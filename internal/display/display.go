// Package display renders the latest reading for display surfaces. Every style
// runs the same per-field routine (convert, round, format direction) and only
// the wrapping differs.
package display

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"strconv"
	"strings"

	"github.com/couchcryptid/meteo-telemetry-service/internal/domain"
	"github.com/couchcryptid/meteo-telemetry-service/internal/units"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Style selects the output shape.
type Style string

const (
	StyleSingle Style = "single"
	StyleRaw    Style = "raw"
	StyleList   Style = "list"
	StyleTable  Style = "table"
	StyleInline Style = "inline"
)

// ParseStyle maps a style name to a Style. Unknown names are rejected.
func ParseStyle(s string) (Style, bool) {
	switch st := Style(strings.ToLower(strings.TrimSpace(s))); st {
	case StyleSingle, StyleRaw, StyleList, StyleTable, StyleInline:
		return st, true
	default:
		return "", false
	}
}

// Direction selects how the wind direction field is shown.
type Direction string

const (
	Degrees Direction = "degrees"
	Compass Direction = "compass"
)

// NoRounding leaves values at the precision produced by unit conversion.
const NoRounding = -1

// DefaultPlaceholder is shown when there is nothing to render.
const DefaultPlaceholder = "No data available"

// Options controls one render.
type Options struct {
	// Fields restricts and orders the output. Empty renders every field in
	// key order. For StyleSingle the first present field is used.
	Fields []string
	// Targets are the requested units. Empty entries fall back to the
	// station's source unit.
	Targets   units.Set
	Style     Style
	Decimals  int
	Direction Direction
	// Placeholder replaces an empty result. Empty uses DefaultPlaceholder.
	Placeholder string
}

// Item is one formatted field.
type Item struct {
	Key   string
	Label string
	Value string
	Unit  string
}

// Output is a rendered payload.
type Output struct {
	ContentType string
	Body        []byte
}

// Formatter renders field maps. It is safe for concurrent use.
type Formatter struct {
	tmpl *template.Template
}

// New parses the embedded templates.
func New() (*Formatter, error) {
	return newFromFS(templatesFS, "templates")
}

func newFromFS(fsys fs.FS, dir string) (*Formatter, error) {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return nil, err
	}
	tmpl, err := template.ParseFS(sub, "*.html")
	if err != nil {
		return nil, fmt.Errorf("parse display templates: %w", err)
	}
	return &Formatter{tmpl: tmpl}, nil
}

// Items formats each selected field of f. source holds the units the station
// reported in.
func (fm *Formatter) Items(f domain.Fields, source units.Set, opts Options) []Item {
	keys := selectKeys(f, opts.Fields)
	items := make([]Item, 0, len(keys))
	for _, k := range keys {
		items = append(items, formatField(k, f[k], source, opts))
	}
	return items
}

// Render produces the payload for opts.Style.
func (fm *Formatter) Render(f domain.Fields, source units.Set, opts Options) (Output, error) {
	items := fm.Items(f, source, opts)
	if len(items) == 0 {
		placeholder := opts.Placeholder
		if placeholder == "" {
			placeholder = DefaultPlaceholder
		}
		return textOutput(placeholder), nil
	}

	switch opts.Style {
	case StyleSingle:
		return textOutput(items[0].Value), nil
	case StyleRaw:
		out := make(map[string]domain.Value, len(items))
		for _, it := range items {
			out[it.Key] = domain.Value(it.Value)
		}
		body, err := json.Marshal(out)
		if err != nil {
			return Output{}, fmt.Errorf("encode raw display: %w", err)
		}
		return Output{ContentType: "application/json", Body: body}, nil
	case StyleList:
		return fm.execute("list.html", items)
	case StyleTable:
		return fm.execute("table.html", items)
	case StyleInline, "":
		parts := make([]string, len(items))
		for i, it := range items {
			parts[i] = it.Key + ": " + withUnit(it.Value, it.Unit)
		}
		return textOutput(strings.Join(parts, " | ")), nil
	default:
		return Output{}, fmt.Errorf("unknown display style %q", opts.Style)
	}
}

func (fm *Formatter) execute(name string, items []Item) (Output, error) {
	var buf bytes.Buffer
	if err := fm.tmpl.ExecuteTemplate(&buf, name, items); err != nil {
		return Output{}, fmt.Errorf("render %s: %w", name, err)
	}
	return Output{ContentType: "text/html; charset=utf-8", Body: buf.Bytes()}, nil
}

// formatField is the single routine every style uses for a field.
func formatField(key string, raw domain.Value, source units.Set, opts Options) Item {
	it := Item{Key: key, Label: FieldLabel(key), Value: string(raw)}

	v, ok := raw.Float()
	if !ok {
		return it
	}

	q := units.ForField(key)
	switch q {
	case units.DirectionQty:
		if opts.Direction == Compass {
			it.Value = units.Compass(v)
			return it
		}
		it.Value = formatNumber(units.NormalizeDegrees(v), opts.Decimals)
		it.Unit = "°"
		return it
	case units.None:
		it.Value = formatNumber(v, opts.Decimals)
		if key == "H" || key == "HIN" {
			it.Unit = "%"
		}
		return it
	}

	from := source.For(q)
	to := opts.Targets.For(q)
	if to == "" {
		to = from
	}
	if from != "" {
		v = units.Convert(q, v, string(from), string(to))
	}
	it.Value = formatNumber(v, opts.Decimals)
	it.Unit = units.Label(to)
	return it
}

// Convert returns a copy of f in which each field whose quantity has a unit in
// targets is converted from its source unit. Other fields are copied as is.
func Convert(f domain.Fields, source, targets units.Set) domain.Fields {
	out := f.Clone()
	for k, raw := range f {
		q := units.ForField(k)
		to := targets.For(q)
		if to == "" {
			continue
		}
		v, ok := raw.Float()
		if !ok {
			continue
		}
		from := source.For(q)
		if from == "" {
			continue
		}
		out[k] = domain.Value(formatNumber(units.Convert(q, v, string(from), string(to)), NoRounding))
	}
	return out
}

func selectKeys(f domain.Fields, requested []string) []string {
	if len(requested) == 0 {
		return f.Keys()
	}
	seen := make(map[string]struct{}, len(requested))
	keys := make([]string, 0, len(requested))
	for _, k := range requested {
		k = strings.ToUpper(strings.TrimSpace(k))
		if _, dup := seen[k]; dup {
			continue
		}
		if _, ok := f[k]; ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}

func formatNumber(v float64, decimals int) string {
	if decimals < 0 {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.FormatFloat(units.RoundTo(v, decimals), 'f', decimals, 64)
}

func withUnit(value, unit string) string {
	switch unit {
	case "":
		return value
	case "°":
		return value + unit
	default:
		return value + " " + unit
	}
}

func textOutput(s string) Output {
	return Output{ContentType: "text/plain; charset=utf-8", Body: []byte(s)}
}

// fieldLabels names the fixed field codes.
var fieldLabels = map[string]string{
	"T":   "Temperature",
	"TMX": "Max temperature",
	"TMN": "Min temperature",
	"TIN": "Indoor temperature",
	"H":   "Humidity",
	"HIN": "Indoor humidity",
	"P":   "Pressure",
	"W":   "Wind speed",
	"G":   "Wind gust",
	"B":   "Wind bearing",
	"S":   "Wind direction",
	"R":   "Rain",
	"RR":  "Rain rate",
	"SS":  "Sunshine",
	"UV":  "UV index",
	"CC":  "Cloud cover",
	"SN":  "New snow",
	"SD":  "Snow depth",
	"L":   "Leaf wetness",
	"NL":  "Leaf wetness (alt)",
	"SW":  "Station",
	"U":   "Station time",
}

// FieldLabel returns a human-readable name for a field code, or the code
// itself when it has none.
func FieldLabel(key string) string {
	if l, ok := fieldLabels[key]; ok {
		return l
	}
	return key
}
