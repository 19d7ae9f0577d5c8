package harness

import "github.com/prometheus/client_golang/prometheus"

var (
	repetitionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "savina_repetition_seconds",
			Help:    "Wall-clock duration of one benchmark repetition, from Run to quiescence, in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		},
		[]string{"benchmark", "cores"},
	)

	operationsExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "savina_scheduler_operations_total",
			Help: "Total number of cell operations executed by benchmark repetitions.",
		},
		[]string{"benchmark"},
	)

	repetitionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "savina_repetition_failures_total",
			Help: "Total number of benchmark repetitions that failed or timed out.",
		},
		[]string{"benchmark"},
	)
)

func init() {
	prometheus.MustRegister(repetitionDuration)
	prometheus.MustRegister(operationsExecuted)
	prometheus.MustRegister(repetitionFailures)
}
