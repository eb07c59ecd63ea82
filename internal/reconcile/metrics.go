package reconcile

import "github.com/prometheus/client_golang/prometheus"

var (
	reconcileRuns   prometheus.Counter
	divergenceTotal *prometheus.CounterVec
)

// InitPrometheusMetrics registers the reconciliation metrics. Call once at
// startup, before the first pass.
func InitPrometheusMetrics() {
	reconcileRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "site4me",
			Name:      "reconcile_runs_total",
			Help:      "Completed reconciliation passes.",
		},
	)
	divergenceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "site4me",
			Name:      "reconcile_divergence_total",
			Help:      "Aggregate keys found differing between local store and mirror.",
		},
		[]string{"key"},
	)
	prometheus.MustRegister(reconcileRuns, divergenceTotal)
}
