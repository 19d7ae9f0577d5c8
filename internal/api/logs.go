package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/savina/internal/model"
	"github.com/seantiz/savina/internal/store"
)

// handleStreamLogs follows a run as server-sent events. Every feed event is
// sent under its kind (start, repetition, summary, abort) with a JSON payload,
// and the stream ends with a done event carrying the final run record. A run
// that has already finished gets the done event alone.
func (s *Server) handleStreamLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("get run for logs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if model.Terminal(run.Status) {
		w.WriteHeader(http.StatusOK)
		_ = s.writeSSE(w, "done", run)
		return
	}

	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	// The feed replays what the run published before this subscription, and a
	// run that finished in between yields a closed channel.
	events, unsub := s.engine.Feed().Subscribe(id)
	defer unsub()

	openStreams.Inc()
	defer openStreams.Dec()

	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = s.writeSSE(w, "done", s.finalRun(id, run))
				_ = rc.Flush()
				return
			}
			if err := s.writeSSE(w, ev.Kind, ev.Data); err != nil {
				return
			}
			_ = rc.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// finalRun reloads the run once its feed has closed, falling back to the
// record read when the stream opened.
func (s *Server) finalRun(id string, opened *model.Run) *model.Run {
	run, err := s.store.GetRun(context.Background(), id)
	if err != nil {
		s.logger.Error("reload run for done event", "run_id", id, "error", err)
		return opened
	}
	return run
}

// logHistoryLine is a single log line in the history response.
type logHistoryLine struct {
	Seq       int    `json:"seq"`
	Line      string `json:"line"`
	CreatedAt string `json:"created_at"`
}

// logHistoryResponse is the JSON response for GET /v1/runs/{id}/logs/history.
type logHistoryResponse struct {
	RunID string           `json:"run_id"`
	Lines []logHistoryLine `json:"lines"`
}

func (s *Server) handleGetLogHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.store.GetRun(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("get run for log history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	logLines, err := s.store.GetLogLines(r.Context(), id)
	if err != nil {
		s.logger.Error("get log lines", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get log lines")
		return
	}

	lines := make([]logHistoryLine, len(logLines))
	for i, l := range logLines {
		lines[i] = logHistoryLine{
			Seq:       l.Seq,
			Line:      l.Line,
			CreatedAt: l.CreatedAt.Format(time.RFC3339),
		}
	}

	s.writeJSON(w, http.StatusOK, logHistoryResponse{
		RunID: id,
		Lines: lines,
	})
}

// writeSSE writes one named event whose data is the JSON encoding of v.
// Encoded JSON holds no raw newline, so the payload is always a single data
// line.
func (s *Server) writeSSE(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encode SSE event", "event", event, "error", err)
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
