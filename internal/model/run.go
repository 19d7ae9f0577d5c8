package model

import "time"

// Run status constants.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusKilled    = "killed"
)

// Paradigm constants.
const (
	ParadigmActor = "actor"
	ParadigmBoC   = "boc"
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusRunning: true,
		StatusFailed:  true,
		StatusKilled:  true,
	},
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusKilled:    true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Terminal reports whether status is final.
func Terminal(status string) bool {
	_, ok := validTransitions[status]
	return !ok
}

// LogLine represents a single persisted progress line of a run.
type LogLine struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Seq       int       `json:"seq"`
	Line      string    `json:"line"`
	CreatedAt time.Time `json:"created_at"`
}

// Run is one measurement of a benchmark: a number of timed repetitions on a
// given core count, or on every core count up to it when Scale is set.
type Run struct {
	ID          string            `json:"id"`
	Status      string            `json:"status"`
	Benchmark   string            `json:"benchmark"`
	Name        string            `json:"name,omitempty"`
	Paradigm    string            `json:"paradigm,omitempty"`
	Params      map[string]uint64 `json:"params,omitempty"`
	Cores       int               `json:"cores"`
	Repetitions int               `json:"repetitions"`
	Scale       bool              `json:"scale"`
	TimeoutS    *int              `json:"timeout_s,omitempty"`

	MeanMS    *float64  `json:"mean_ms,omitempty"`
	MedianMS  *float64  `json:"median_ms,omitempty"`
	ErrorPct  *float64  `json:"error_pct,omitempty"`
	StddevMS  *float64  `json:"stddev_ms,omitempty"`
	SamplesMS []float64 `json:"samples_ms,omitempty"`

	Outcome    map[string]any `json:"outcome,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMS *int           `json:"duration_ms,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}
