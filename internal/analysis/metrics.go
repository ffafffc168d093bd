package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the analyzer's Prometheus collectors.
type Metrics struct {
	runsAnalyzed     *prometheus.CounterVec
	strategiesFailed *prometheus.CounterVec
	runsSkipped      *prometheus.CounterVec
	cacheHits        prometheus.Counter
	duration         *prometheus.HistogramVec
}

// NewMetrics registers the analyzer collectors on reg. A nil reg uses the
// default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		runsAnalyzed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hrcsafety_runs_analyzed_total",
			Help: "Runs whose distribution curve was built, by strategy",
		}, []string{"strategy"}),
		strategiesFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hrcsafety_strategies_failed_total",
			Help: "Strategy computations that failed, by strategy",
		}, []string{"strategy"}),
		runsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hrcsafety_runs_skipped_total",
			Help: "Runs left out of the risk table, by reason",
		}, []string{"reason"}),
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "hrcsafety_report_cache_hits_total",
			Help: "Analyses answered from the report cache",
		}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hrcsafety_analysis_duration_seconds",
			Help:    "Analysis duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}, []string{"experiment", "result"}),
	}
}
