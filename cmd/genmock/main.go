// Command genmock synthesizes Meteobridge push payloads for tests and local
// load. It optionally writes the normalized form of every push, produced by
// the real domain package, and can publish the pushes to a Kafka topic.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out data/mock/meteobridge_pushes.json \
//	  -normalized-out data/mock/meteobridge_normalized.json \
//	  -count 24 -interval 5m -seed 42
//
//	go run ./cmd/genmock -out /tmp/pushes.json \
//	  -brokers localhost:9092 -topic meteo-raw-telemetry
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/meteo-telemetry-service/internal/domain"
)

type options struct {
	out           string
	normalizedOut string
	count         int
	interval      time.Duration
	start         time.Time
	station       string
	seed          uint64
	commaEvery    int
	brokers       string
	topic         string
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	var opts options
	start := flag.String("start", "2026-03-01T00:00:00Z", "timestamp of the first push (RFC 3339)")
	flag.StringVar(&opts.out, "out", "", "output path for the raw push fixture")
	flag.StringVar(&opts.normalizedOut, "normalized-out", "", "optional output path for normalized fields")
	flag.IntVar(&opts.count, "count", 24, "number of pushes")
	flag.DurationVar(&opts.interval, "interval", 5*time.Minute, "time between pushes")
	flag.StringVar(&opts.station, "station", "roof", "station identifier (SW)")
	flag.Uint64Var(&opts.seed, "seed", 42, "random seed")
	flag.IntVar(&opts.commaEvery, "comma-every", 3, "every n-th push uses decimal commas (0 disables)")
	flag.StringVar(&opts.brokers, "brokers", "", "comma-separated Kafka brokers to publish to")
	flag.StringVar(&opts.topic, "topic", "meteo-raw-telemetry", "Kafka topic to publish to")
	flag.Parse()

	if opts.out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if opts.count <= 0 {
		return fmt.Errorf("-count must be positive")
	}
	t, err := time.Parse(time.RFC3339, *start)
	if err != nil {
		return fmt.Errorf("invalid -start: %w", err)
	}
	opts.start = t.UTC()

	pushes := generate(opts)

	if err := writeJSON(opts.out, pushes); err != nil {
		return fmt.Errorf("writing push fixture: %w", err)
	}
	log.Printf("wrote %d pushes: %s", len(pushes), opts.out)

	if opts.normalizedOut != "" {
		normalized := make([]domain.Fields, 0, len(pushes))
		for i, p := range pushes {
			normalized = append(normalized, domain.Normalize(p, opts.start.Add(time.Duration(i)*opts.interval)))
		}
		if err := writeJSON(opts.normalizedOut, normalized); err != nil {
			return fmt.Errorf("writing normalized fixture: %w", err)
		}
		log.Printf("wrote normalized fixture: %s", opts.normalizedOut)
	}

	if brokers := sharedcfg.ParseBrokers(opts.brokers); len(brokers) > 0 {
		if err := publish(brokers, opts.topic, pushes); err != nil {
			return fmt.Errorf("publishing to kafka: %w", err)
		}
		log.Printf("published %d pushes to %s", len(pushes), opts.topic)
	}

	printStats(pushes)
	return nil
}

// generate produces a day-shaped series: temperature follows a sine over 24h,
// rain accumulates, and a couple of keys Meteobridge sends are not part of the
// accepted vocabulary.
func generate(opts options) []map[string]string {
	rng := rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15))
	pushes := make([]map[string]string, 0, opts.count)

	rain := 0.0
	for i := range opts.count {
		at := opts.start.Add(time.Duration(i) * opts.interval)
		comma := opts.commaEvery > 0 && i%opts.commaEvery == opts.commaEvery-1
		num := func(v float64) string {
			s := strconv.FormatFloat(v, 'f', 1, 64)
			if comma {
				s = strings.Replace(s, ".", ",", 1)
			}
			return s
		}

		hours := at.Sub(opts.start).Hours()
		temp := 8 + 4*math.Sin(hours/24*2*math.Pi) + jitter(rng, 0.3)
		wind := math.Max(0, 3+jitter(rng, 1.5))
		rate := []float64{0, 0, 0, 0.4, 1.2}[rng.IntN(5)]
		rain += rate * opts.interval.Hours()

		push := map[string]string{
			"T":       num(temp),
			"TMX":     num(temp + 1.2),
			"TMN":     num(temp - 2.3),
			"H":       strconv.Itoa(65 + rng.IntN(11)),
			"P":       num(1013.2 + jitter(rng, 2)),
			"W":       num(wind),
			"G":       num(wind + 0.5 + rng.Float64()*2.5),
			"S":       strconv.Itoa(rng.IntN(360)),
			"R":       num(rain),
			"RR":      num(rate),
			"SS":      strconv.Itoa(rng.IntN(41)),
			"UV":      num(rng.Float64()),
			"TIN":     num(21 + jitter(rng, 0.5)),
			"HIN":     strconv.Itoa(38 + rng.IntN(8)),
			"T1":      num(temp - 0.4),
			"H1":      strconv.Itoa(67 + rng.IntN(11)),
			"THB0BAT": "1",
			"TH0BAT":  "1",
			"SW":      opts.station,
			"U":       strconv.FormatInt(at.Unix(), 10),
			"rssi":    strconv.Itoa(-50 - rng.IntN(31)),
			"fw":      "5.7",
		}
		push["B"] = push["S"]
		pushes = append(pushes, push)
	}
	return pushes
}

func jitter(rng *rand.Rand, spread float64) float64 {
	return (rng.Float64()*2 - 1) * spread
}

func publish(brokers []string, topic string, pushes []map[string]string) error {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	defer w.Close()

	msgs := make([]kafkago.Message, 0, len(pushes))
	for _, p := range pushes {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafkago.Message{Key: []byte(p["SW"]), Value: data})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return w.WriteMessages(ctx, msgs...)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

func printStats(pushes []map[string]string) {
	minT, maxT := math.Inf(1), math.Inf(-1)
	commas := 0
	for _, p := range pushes {
		raw := p["T"]
		if strings.Contains(raw, ",") {
			commas++
		}
		v, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
		if err != nil {
			continue
		}
		minT, maxT = math.Min(minT, v), math.Max(maxT, v)
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Total: %d\n", len(pushes))
	fmt.Printf("Decimal-comma pushes: %d\n", commas)
	fmt.Printf("Temperature range: %.1f to %.1f\n", minT, maxT)
	fmt.Printf("Last U: %s\n", pushes[len(pushes)-1]["U"])
}
