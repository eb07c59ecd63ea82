package recorder

import "github.com/prometheus/client_golang/prometheus"

var (
	pageviewsTotal *prometheus.CounterVec
	visitDuration  prometheus.Histogram
	retryBuffered  prometheus.Counter
	retryReplayed  prometheus.Counter
)

// InitPrometheusMetrics registers the fold metrics. Call once at startup,
// before the first Record.
func InitPrometheusMetrics() {
	pageviewsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "site4me",
			Name:      "pageviews_total",
			Help:      "Total number of recorded page views.",
		},
		[]string{"page"},
	)
	visitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "site4me",
			Name:      "visit_duration_seconds",
			Help:      "Histogram of recorded visit dwell times in seconds.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)
	retryBuffered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "site4me",
			Name:      "retry_buffered_total",
			Help:      "Visit events parked in the retry buffer after a store failure.",
		},
	)
	retryReplayed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "site4me",
			Name:      "retry_replayed_total",
			Help:      "Buffered visit events successfully replayed.",
		},
	)
	prometheus.MustRegister(pageviewsTotal, visitDuration, retryBuffered, retryReplayed)
}
