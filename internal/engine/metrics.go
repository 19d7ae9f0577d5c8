package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/savina/internal/model"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "savina_runs_total",
			Help: "Total number of benchmark runs finished by the engine.",
		},
		[]string{"benchmark", "status"},
	)

	activeRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "savina_active_runs",
			Help: "Number of benchmark runs currently executing.",
		},
	)

	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "savina_run_seconds",
			Help:    "Wall-clock duration of a whole run, every repetition included, in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 16),
		},
		[]string{"benchmark"},
	)
)

func init() {
	prometheus.MustRegister(runsTotal)
	prometheus.MustRegister(activeRuns)
	prometheus.MustRegister(runDuration)
}

// initRunMetrics pre-creates the terminal status series of a benchmark so
// they read zero before the first run finishes.
func initRunMetrics(benchmark string) {
	for _, status := range []string{model.StatusCompleted, model.StatusFailed, model.StatusKilled} {
		runsTotal.WithLabelValues(benchmark, status)
	}
}
