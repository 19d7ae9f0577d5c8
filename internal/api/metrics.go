package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// streamRoute is excluded from request latency; open streams are counted by
// openStreams instead.
const streamRoute = "/v1/runs/{id}/logs"

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "savina_http_requests_total",
			Help: "HTTP requests served, by route pattern and status class.",
		},
		[]string{"method", "route", "class"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "savina_http_request_duration_seconds",
			Help:    "Latency of non-streaming HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		},
		[]string{"method", "route"},
	)

	runSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "savina_api_run_submissions_total",
			Help: "Run submissions by resolved benchmark and whether they were accepted.",
		},
		[]string{"benchmark", "result"},
	)

	openStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "savina_api_open_log_streams",
			Help: "Server-sent event streams currently following a run.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, runSubmissions, openStreams)
}

// recordSubmission counts a run submission. Rejected submissions are not
// labelled by benchmark, since the name came from the client unresolved.
func recordSubmission(benchmark string, accepted bool) {
	if !accepted {
		runSubmissions.WithLabelValues("", "rejected").Inc()
		return
	}
	runSubmissions.WithLabelValues(benchmark, "accepted").Inc()
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status/100)+"xx").Inc()
		if route != streamRoute {
			httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		}
	})
}

func metricsHandler() http.Handler {
	return promhttp.Handler()
}
