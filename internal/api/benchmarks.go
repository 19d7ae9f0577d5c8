package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListBenchmarks(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Registry().List())
}

func (s *Server) handleGetBenchmark(w http.ResponseWriter, r *http.Request) {
	d, _, err := s.engine.Registry().Resolve(chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, "benchmark not found")
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}
