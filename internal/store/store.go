package store

import (
	"context"
	"errors"

	"github.com/seantiz/savina/internal/model"
)

// ErrInvalidTransition is returned when a run status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// RunStats holds aggregate statistics over all recorded runs.
type RunStats struct {
	Total            int                `json:"total"`
	CountByStatus    map[string]int     `json:"count_by_status"`
	CountByBenchmark map[string]int     `json:"count_by_benchmark"`
	AvgMeanMS        map[string]float64 `json:"avg_mean_ms"`
	AvgDurationMS    float64            `json:"avg_duration_ms"`
}

// Store defines the persistence operations for benchmark runs.
type Store interface {
	CreateRun(ctx context.Context, r *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error)
	UpdateRunStatus(ctx context.Context, id, status string) error
	UpdateRun(ctx context.Context, r *model.Run) error
	GetRunStats(ctx context.Context) (*RunStats, error)
	InsertLogLine(ctx context.Context, runID string, seq int, line string) error
	GetLogLines(ctx context.Context, runID string) ([]model.LogLine, error)
	Close() error
}
