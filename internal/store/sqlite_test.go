package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/seantiz/savina/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func makeTestRun() *model.Run {
	timeout := 30
	return &model.Run{
		ID:          model.NewID(),
		Status:      model.StatusPending,
		Benchmark:   "fib",
		Params:      map[string]uint64{"index": 20},
		Cores:       4,
		Repetitions: 3,
		TimeoutS:    &timeout,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestCreateAndGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := makeTestRun()

	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := s.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}

	if got.ID != r.ID {
		t.Errorf("ID = %q, want %q", got.ID, r.ID)
	}
	if got.Status != r.Status {
		t.Errorf("Status = %q, want %q", got.Status, r.Status)
	}
	if got.Benchmark != r.Benchmark {
		t.Errorf("Benchmark = %q, want %q", got.Benchmark, r.Benchmark)
	}
	if got.Cores != 4 || got.Repetitions != 3 {
		t.Errorf("Cores, Repetitions = %d, %d, want 4, 3", got.Cores, got.Repetitions)
	}
	if got.Params["index"] != 20 {
		t.Errorf("Params = %v, want index=20", got.Params)
	}
	if *got.TimeoutS != 30 {
		t.Errorf("TimeoutS = %d, want 30", *got.TimeoutS)
	}
	if got.MeanMS != nil {
		t.Errorf("MeanMS = %v, want nil", *got.MeanMS)
	}
	if got.Scale {
		t.Error("Scale = true, want false")
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetRun(ctx, "nonexistent")
	if err != ErrNotFound {
		t.Errorf("GetRun error = %v, want ErrNotFound", err)
	}
}

func TestListRunsPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := range 5 {
		r := makeTestRun()
		r.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second).Truncate(time.Second)
		if err := s.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun[%d]: %v", i, err)
		}
	}

	runs, total, err := s.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(runs) != 2 {
		t.Errorf("len(runs) = %d, want 2", len(runs))
	}

	runs2, _, err := s.ListRuns(ctx, 2, 4)
	if err != nil {
		t.Fatalf("ListRuns page 3: %v", err)
	}
	if len(runs2) != 1 {
		t.Errorf("len(runs) page 3 = %d, want 1", len(runs2))
	}
}

func TestListRunsOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := range 3 {
		r := makeTestRun()
		r.CreatedAt = time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC)
		if err := s.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun[%d]: %v", i, err)
		}
	}

	runs, _, err := s.ListRuns(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}

	// Newest first.
	for i := 1; i < len(runs); i++ {
		if runs[i].CreatedAt.After(runs[i-1].CreatedAt) {
			t.Errorf("runs not in DESC order: [%d].CreatedAt=%v > [%d].CreatedAt=%v",
				i, runs[i].CreatedAt, i-1, runs[i-1].CreatedAt)
		}
	}
}

func TestListRunsEmpty(t *testing.T) {
	s := newTestStore(t)

	runs, total, err := s.ListRuns(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if total != 0 {
		t.Errorf("total = %d, want 0", total)
	}
	if runs != nil {
		t.Errorf("runs = %v, want nil", runs)
	}
}

func TestUpdateRunStatusLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := makeTestRun()

	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	if err := s.UpdateRunStatus(ctx, r.ID, model.StatusRunning); err != nil {
		t.Fatalf("pending→running: %v", err)
	}
	got, _ := s.GetRun(ctx, r.ID)
	if got.Status != model.StatusRunning {
		t.Errorf("Status = %q, want %q", got.Status, model.StatusRunning)
	}
	if got.StartedAt == nil {
		t.Error("StartedAt is nil, expected it to be set for running status")
	}

	if err := s.UpdateRunStatus(ctx, r.ID, model.StatusCompleted); err != nil {
		t.Fatalf("running→completed: %v", err)
	}
	got, _ = s.GetRun(ctx, r.ID)
	if got.Status != model.StatusCompleted {
		t.Errorf("Status = %q, want %q", got.Status, model.StatusCompleted)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt is nil, expected it to be set for completed status")
	}
}

func TestUpdateRunStatusKilledSetsFinishedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := makeTestRun()

	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := s.UpdateRunStatus(ctx, r.ID, model.StatusKilled); err != nil {
		t.Fatalf("UpdateRunStatus: %v", err)
	}

	got, _ := s.GetRun(ctx, r.ID)
	if got.FinishedAt == nil {
		t.Error("FinishedAt is nil, expected it to be set for killed status")
	}
}

func TestUpdateRunStatusNotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateRunStatus(context.Background(), "nonexistent", model.StatusRunning)
	if err != ErrNotFound {
		t.Errorf("UpdateRunStatus error = %v, want ErrNotFound", err)
	}
}

func TestUpdateRunStatusInvalidTransition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		from, to string
	}{
		{"pending→completed", model.StatusPending, model.StatusCompleted},
		{"completed→killed", model.StatusCompleted, model.StatusKilled},
		{"failed→running", model.StatusFailed, model.StatusRunning},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := makeTestRun()
			r.Status = tc.from
			if err := s.CreateRun(ctx, r); err != nil {
				t.Fatalf("CreateRun: %v", err)
			}

			err := s.UpdateRunStatus(ctx, r.ID, tc.to)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("got error %v, want ErrInvalidTransition", err)
			}
		})
	}
}

func TestUpdateRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := makeTestRun()

	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	now := time.Now().UTC()
	r.Status = model.StatusRunning
	r.StartedAt = &now
	if err := s.UpdateRun(ctx, r); err != nil {
		t.Fatalf("UpdateRun (running): %v", err)
	}

	mean, median, errPct, stddev := 1.5, 1.25, 3.0, 0.2
	durationMS := 150
	finishedAt := now.Add(150 * time.Millisecond)
	r.Status = model.StatusCompleted
	r.Name = "Fib"
	r.Paradigm = model.ParadigmActor
	r.MeanMS, r.MedianMS, r.ErrorPct, r.StddevMS = &mean, &median, &errPct, &stddev
	r.SamplesMS = []float64{1.25, 1.5, 1.75}
	r.Outcome = map[string]any{"result": 6765, "done": true}
	r.DurationMS = &durationMS
	r.FinishedAt = &finishedAt
	if err := s.UpdateRun(ctx, r); err != nil {
		t.Fatalf("UpdateRun (completed): %v", err)
	}

	got, err := s.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Errorf("Status = %q, want %q", got.Status, model.StatusCompleted)
	}
	if got.Name != "Fib" || got.Paradigm != model.ParadigmActor {
		t.Errorf("Name, Paradigm = %q, %q", got.Name, got.Paradigm)
	}
	if got.MeanMS == nil || *got.MeanMS != 1.5 {
		t.Errorf("MeanMS = %v, want 1.5", got.MeanMS)
	}
	if len(got.SamplesMS) != 3 {
		t.Errorf("SamplesMS = %v, want 3 samples", got.SamplesMS)
	}
	// JSON numbers decode as float64.
	if got.Outcome["result"] != float64(6765) || got.Outcome["done"] != true {
		t.Errorf("Outcome = %v", got.Outcome)
	}
	if *got.DurationMS != 150 {
		t.Errorf("DurationMS = %d, want 150", *got.DurationMS)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt is nil")
	}
}

func TestUpdateRunNotFound(t *testing.T) {
	s := newTestStore(t)

	r := makeTestRun()
	r.ID = "nonexistent"
	err := s.UpdateRun(context.Background(), r)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}
}

func TestUpdateRunInvalidTransition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := makeTestRun()

	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	r.Status = model.StatusCompleted
	err := s.UpdateRun(ctx, r)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("got error %v, want ErrInvalidTransition", err)
	}
}

func TestGetRunStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := range 3 {
		r := makeTestRun()
		if err := s.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
		if i == 2 {
			continue
		}
		if err := s.UpdateRunStatus(ctx, r.ID, model.StatusRunning); err != nil {
			t.Fatalf("UpdateRunStatus running: %v", err)
		}
		mean := 10.0 + float64(i)*10 // 10, 20
		dur := 100 + i*100           // 100, 200
		r.Status = model.StatusCompleted
		r.MeanMS = &mean
		r.DurationMS = &dur
		if err := s.UpdateRun(ctx, r); err != nil {
			t.Fatalf("UpdateRun completed: %v", err)
		}
	}

	q := makeTestRun()
	q.Benchmark = "quicksort"
	if err := s.CreateRun(ctx, q); err != nil {
		t.Fatalf("CreateRun (quicksort): %v", err)
	}

	stats, err := s.GetRunStats(ctx)
	if err != nil {
		t.Fatalf("GetRunStats: %v", err)
	}

	if stats.Total != 4 {
		t.Errorf("Total = %d, want 4", stats.Total)
	}
	if stats.CountByStatus[model.StatusCompleted] != 2 {
		t.Errorf("completed count = %d, want 2", stats.CountByStatus[model.StatusCompleted])
	}
	if stats.CountByStatus[model.StatusPending] != 2 {
		t.Errorf("pending count = %d, want 2", stats.CountByStatus[model.StatusPending])
	}
	if stats.CountByBenchmark["fib"] != 3 {
		t.Errorf("fib count = %d, want 3", stats.CountByBenchmark["fib"])
	}
	if stats.CountByBenchmark["quicksort"] != 1 {
		t.Errorf("quicksort count = %d, want 1", stats.CountByBenchmark["quicksort"])
	}
	if stats.AvgMeanMS["fib"] != 15 {
		t.Errorf("AvgMeanMS[fib] = %f, want 15", stats.AvgMeanMS["fib"])
	}
	if _, ok := stats.AvgMeanMS["quicksort"]; ok {
		t.Error("AvgMeanMS has an entry for a benchmark with no completed runs")
	}
	if stats.AvgDurationMS != 150 {
		t.Errorf("AvgDurationMS = %f, want 150", stats.AvgDurationMS)
	}
}

func TestGetRunStatsEmpty(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.GetRunStats(context.Background())
	if err != nil {
		t.Fatalf("GetRunStats: %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("Total = %d, want 0", stats.Total)
	}
	if stats.AvgDurationMS != 0 {
		t.Errorf("AvgDurationMS = %f, want 0", stats.AvgDurationMS)
	}
}

func TestInsertAndGetLogLines(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := makeTestRun()
	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	for _, seq := range []int{2, 0, 1} {
		if err := s.InsertLogLine(ctx, r.ID, seq, fmt.Sprintf("line %d", seq)); err != nil {
			t.Fatalf("InsertLogLine[%d]: %v", seq, err)
		}
	}

	lines, err := s.GetLogLines(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetLogLines: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for i, l := range lines {
		if l.Seq != i {
			t.Errorf("lines[%d].Seq = %d, want %d", i, l.Seq, i)
		}
		if want := fmt.Sprintf("line %d", i); l.Line != want {
			t.Errorf("lines[%d].Line = %q, want %q", i, l.Line, want)
		}
		if l.RunID != r.ID {
			t.Errorf("lines[%d].RunID = %q, want %q", i, l.RunID, r.ID)
		}
		if l.ID == 0 {
			t.Errorf("lines[%d].ID = 0, expected non-zero auto-increment ID", i)
		}
	}
}

func TestGetLogLinesEmpty(t *testing.T) {
	s := newTestStore(t)

	lines, err := s.GetLogLines(context.Background(), "no-such-run")
	if err != nil {
		t.Fatalf("GetLogLines: %v", err)
	}
	if lines == nil || len(lines) != 0 {
		t.Errorf("lines = %v, want empty non-nil slice", lines)
	}
}

func TestMigrationIdempotency(t *testing.T) {
	s := newTestStore(t)

	for _, stmt := range []string{createRunsTable, createRunLogsTable, createRunLogsIndex} {
		if _, err := s.db.Exec(stmt); err != nil {
			t.Fatalf("second migration: %v", err)
		}
	}
}
