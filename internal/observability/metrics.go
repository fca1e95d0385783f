package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the analysis engine.
type Metrics struct {
	AnalysesTotal    *prometheus.CounterVec // labels: outcome={success, <error kind>, error}
	AnalysisDuration prometheus.Histogram
	EngineReady      prometheus.Gauge

	// Normalization metrics.
	RealizationsNormalized prometheus.Counter
	MissingCells           prometheus.Counter
	UnitDetections         *prometheus.CounterVec // labels: source={attribute,magnitude,override}

	// Baseline cache metrics.
	BaselineCache        *prometheus.CounterVec // labels: result={hit,miss,shared,store}
	BaselineCacheEntries prometheus.Gauge

	// Report publishing metrics.
	ReportsPublished prometheus.Counter
	PublishErrors    prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rainfall",
			Name:      "analyses_total",
			Help:      "Analysis requests by outcome.",
		}, []string{"outcome"}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rainfall",
			Name:      "analysis_duration_seconds",
			Help:      "Duration of a complete analysis request.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		EngineReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rainfall",
			Name:      "engine_ready",
			Help:      "1 when the region catalogue is loaded and dependencies answer, 0 otherwise.",
		}),
		RealizationsNormalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainfall",
			Name:      "realizations_normalized_total",
			Help:      "Ensemble members normalized.",
		}),
		MissingCells: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainfall",
			Name:      "missing_cells_total",
			Help:      "Grid cells flagged missing during normalization.",
		}),
		UnitDetections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rainfall",
			Name:      "unit_detections_total",
			Help:      "Source unit decisions by how they were made.",
		}, []string{"source"}),
		BaselineCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rainfall",
			Name:      "baseline_cache_total",
			Help:      "Baseline ensemble cache lookups by result.",
		}, []string{"result"}),
		BaselineCacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rainfall",
			Name:      "baseline_cache_entries",
			Help:      "Baseline ensembles held in memory.",
		}),
		ReportsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainfall",
			Name:      "reports_published_total",
			Help:      "Analysis reports written to Kafka.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainfall",
			Name:      "publish_errors_total",
			Help:      "Analysis reports that failed to publish.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.AnalysesTotal,
		m.AnalysisDuration,
		m.EngineReady,
		m.RealizationsNormalized,
		m.MissingCells,
		m.UnitDetections,
		m.BaselineCache,
		m.BaselineCacheEntries,
		m.ReportsPublished,
		m.PublishErrors,
	}
}

// NewMetrics creates and registers all engine metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsWithRegistry creates Metrics registered with reg.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewMetricsWithRegistry(prometheus.NewRegistry())
}
