package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/seantiz/savina/internal/engine"
	"github.com/seantiz/savina/internal/workload"
)

func getHealth(t *testing.T, srv *Server) (int, healthResponse) {
	t.Helper()
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, body
}

func TestHealthzReportsBenchmarksAndRuns(t *testing.T) {
	srv := newTestServer(t)

	code, body := getHealth(t, srv)
	if code != http.StatusOK {
		t.Errorf("status = %d, want 200", code)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
	// Six built-in benchmarks plus the sleeper.
	if body.Benchmarks != 7 {
		t.Errorf("benchmarks = %d, want 7", body.Benchmarks)
	}
	if body.RunsInFlight != 0 {
		t.Errorf("runs_in_flight = %d, want 0", body.RunsInFlight)
	}

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()
	resp := postRun(t, ts.URL, `{"benchmark":"sleeper","params":{"ms":200},"repetitions":20}`)
	resp.Body.Close()

	if _, body = getHealth(t, srv); body.RunsInFlight != 1 {
		t.Errorf("runs_in_flight = %d with one submitted run, want 1", body.RunsInFlight)
	}
}

func TestHealthzWithoutBenchmarksIsDegraded(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	eng := engine.NewEngine(nil, workload.NewRegistry(), logger)
	srv := NewServer(":0", nil, eng, logger)

	code, body := getHealth(t, srv)
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
	if body.Status != "degraded" || body.Benchmarks != 0 {
		t.Errorf("body = %+v, want degraded with no benchmarks", body)
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestRunSubmissionsCounted(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	accepted := runSubmissions.WithLabelValues("fib", "accepted")
	rejected := runSubmissions.WithLabelValues("", "rejected")
	beforeAccepted := counterValue(t, accepted)
	beforeRejected := counterValue(t, rejected)

	// The alias resolves, so the accepted run is counted under its key.
	resp := postRun(t, ts.URL, `{"benchmark":"Fib","params":{"index":5},"repetitions":1}`)
	resp.Body.Close()
	resp = postRun(t, ts.URL, `{"benchmark":"nbody"}`)
	resp.Body.Close()

	if got := counterValue(t, accepted) - beforeAccepted; got != 1 {
		t.Errorf("accepted fib submissions = %v, want 1", got)
	}
	if got := counterValue(t, rejected) - beforeRejected; got != 1 {
		t.Errorf("rejected submissions = %v, want 1", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	// Make a request to generate metrics.
	http.Get(ts.URL + "/healthz")

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/plain") && !strings.Contains(contentType, "text/openmetrics") {
		t.Errorf("Content-Type = %q, expected prometheus format", contentType)
	}

	bodyBytes, _ := io.ReadAll(resp.Body)
	body := string(bodyBytes)

	for _, want := range []string{
		`savina_http_requests_total{class="2xx",method="GET",route="/healthz"}`,
		"savina_http_request_duration_seconds",
		"savina_api_open_log_streams",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}
