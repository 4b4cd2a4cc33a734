package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wastewater_ingest"

// Run outcomes recorded in RunsTotal.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the ingest pipeline.
type Metrics struct {
	RowsInserted  prometheus.Counter
	RowsDuplicate prometheus.Counter
	RowsFailed    prometheus.Counter
	RowsTotal     prometheus.Counter

	RunsTotal          *prometheus.CounterVec // labels: outcome={success,error}
	RunDuration        prometheus.Histogram
	LastSuccess        prometheus.Gauge
	PipelineRunning    prometheus.Gauge
	NotificationsTotal *prometheus.CounterVec // labels: sink, outcome={success,error}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}

func newMetrics() *Metrics {
	return &Metrics{
		RowsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_inserted_total",
			Help:      "Samples written to the store.",
		}),
		RowsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_duplicate_total",
			Help:      "Rows skipped because their natural key was already stored.",
		}),
		RowsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_failed_total",
			Help:      "Rows skipped for parse or conversion failures.",
		}),
		RowsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Rows read from the source across all committed runs.",
		}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Ingestion runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete fetch-parse-insert run.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the poll loop is active, 0 when shut down.",
		}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Trend notifications by sink and outcome.",
		}, []string{"sink", "outcome"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RowsInserted,
		m.RowsDuplicate,
		m.RowsFailed,
		m.RowsTotal,
		m.RunsTotal,
		m.RunDuration,
		m.LastSuccess,
		m.PipelineRunning,
		m.NotificationsTotal,
	}
}
