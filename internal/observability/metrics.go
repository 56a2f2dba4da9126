package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "meteo"

// Metrics holds the Prometheus counters, histograms, and gauges for the telemetry service.
type Metrics struct {
	// Ingest metrics.
	IngestRequests *prometheus.CounterVec // labels: source={http,kafka,mqtt}, outcome={stored,invalid_address,origin_denied,unauthorized,store_failure}
	IngestDuration prometheus.Histogram

	// Read path metrics.
	LatestCache *prometheus.CounterVec // labels: result={hit,miss}

	// DNS allowlist metrics.
	DNSLookups        *prometheus.CounterVec // labels: outcome={success,error,empty}
	DNSCache          *prometheus.CounterVec // labels: result={hit,miss}
	DNSLookupDuration prometheus.Histogram

	// Retention metrics.
	ReadingsPurged     prometheus.Counter
	PurgeDuration      prometheus.Histogram
	LastPurgeTimestamp prometheus.Gauge

	// Kafka ingest pipeline metrics.
	MessagesConsumed        prometheus.Counter
	TransformErrors         prometheus.Counter
	DeadLettered            prometheus.Counter
	PipelineRunning         prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// MQTT ingest metrics.
	MQTTMessages  *prometheus.CounterVec // labels: outcome={stored,invalid_payload,rejected}
	MQTTConnected prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		IngestRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_requests_total",
			Help:      "Telemetry pushes by source and outcome.",
		}, []string{"source", "outcome"}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Duration of a gate-normalize-store cycle for one push.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}),
		LatestCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "latest_cache_total",
			Help:      "Latest-reading cache lookups by result.",
		}, []string{"result"}),
		DNSLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dns_lookups_total",
			Help:      "Allowlist hostname resolutions by outcome.",
		}, []string{"outcome"}),
		DNSCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dns_cache_total",
			Help:      "Allowlist DNS cache lookups by result.",
		}, []string{"result"}),
		DNSLookupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dns_lookup_duration_seconds",
			Help:      "Forward DNS resolution duration in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		ReadingsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_purged_total",
			Help:      "Readings removed by retention pruning.",
		}),
		PurgeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "purge_duration_seconds",
			Help:      "Duration of a retention purge.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
		LastPurgeTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_purge_timestamp_seconds",
			Help:      "Unix time of the last successful retention purge.",
		}),
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total messages read from the Kafka source topic.",
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      "Kafka messages rejected by validation.",
		}),
		DeadLettered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_lettered_total",
			Help:      "Rejected Kafka messages copied to the dead-letter topic.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the Kafka ingest pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-transform-load cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		MQTTMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_messages_total",
			Help:      "MQTT telemetry messages by outcome.",
		}, []string{"outcome"}),
		MQTTConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mqtt_connected",
			Help:      "1 while the MQTT subscriber holds a broker connection.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.IngestRequests,
		m.IngestDuration,
		m.LatestCache,
		m.DNSLookups,
		m.DNSCache,
		m.DNSLookupDuration,
		m.ReadingsPurged,
		m.PurgeDuration,
		m.LastPurgeTimestamp,
		m.MessagesConsumed,
		m.TransformErrors,
		m.DeadLettered,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.MQTTMessages,
		m.MQTTConnected,
	}
}
