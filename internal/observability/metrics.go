package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "athens_energy"

// Metrics holds the Prometheus counters, histograms, and gauges for ingestion
// and analysis runs.
type Metrics struct {
	// Analysis run metrics.
	RecordsProcessed    prometheus.Counter
	RecordsRejected     *prometheus.CounterVec // labels: flag
	RecordsWarned       *prometheus.CounterVec // labels: flag
	GroupsEmitted       *prometheus.CounterVec // labels: status={validated,low_confidence,insufficient_data}
	PipelineRuns        prometheus.Counter
	PipelineRunDuration prometheus.Histogram

	// Ingestion metrics.
	ListingsIngested prometheus.Counter
	BatchesProcessed *prometheus.CounterVec // labels: outcome={success,error}
	BatchSize        prometheus.Histogram
	QueueDepth       prometheus.Gauge
	KafkaMessages    *prometheus.CounterVec // labels: outcome={decoded,invalid}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RecordsProcessed,
		m.RecordsRejected,
		m.RecordsWarned,
		m.GroupsEmitted,
		m.PipelineRuns,
		m.PipelineRunDuration,
		m.ListingsIngested,
		m.BatchesProcessed,
		m.BatchSize,
		m.QueueDepth,
		m.KafkaMessages,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RecordsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_processed_total",
			Help:      "Total records handed to the outlier filter.",
		}),
		RecordsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Rejected records by rejecting flag.",
		}, []string{"flag"}),
		RecordsWarned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_warned_total",
			Help:      "Accepted records carrying a warning-only flag.",
		}, []string{"flag"}),
		GroupsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groups_emitted_total",
			Help:      "Groups summarized by status.",
		}, []string{"status"}),
		PipelineRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total completed analysis runs.",
		}),
		PipelineRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_run_duration_seconds",
			Help:      "Duration of a complete filter, group and aggregate run.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		ListingsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listings_ingested_total",
			Help:      "Total listings persisted by the batch processor.",
		}),
		BatchesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_processed_total",
			Help:      "Ingestion batches by outcome.",
		}, []string{"outcome"}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of listings per ingestion batch.",
			Buckets:   []float64{1, 5, 10, 20, 50, 100, 250},
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Batches waiting in the ingestion queue.",
		}),
		KafkaMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_messages_total",
			Help:      "Kafka listing messages by outcome.",
		}, []string{"outcome"}),
	}
}
