package api

import "net/http"

// healthResponse reports liveness together with what the engine can serve.
type healthResponse struct {
	Status       string `json:"status"`
	Benchmarks   int    `json:"benchmarks"`
	RunsInFlight int    `json:"runs_in_flight"`
}

// handleHealthz answers 503 when no benchmark is registered, since every run
// submission would then be rejected.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:       "ok",
		Benchmarks:   len(s.engine.Registry().List()),
		RunsInFlight: s.engine.InFlight(),
	}
	code := http.StatusOK
	if resp.Benchmarks == 0 {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, resp)
}
