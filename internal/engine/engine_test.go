package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/seantiz/savina/internal/cell"
	"github.com/seantiz/savina/internal/engine"
	"github.com/seantiz/savina/internal/harness"
	"github.com/seantiz/savina/internal/model"
	"github.com/seantiz/savina/internal/store"
	"github.com/seantiz/savina/internal/workload"
	"github.com/seantiz/savina/internal/workload/builtin"
)

// sleeper is a benchmark whose single operation sleeps, for exercising
// timeouts and kills.
type sleeper struct {
	d time.Duration
}

func (s *sleeper) Name() string     { return "Sleeper" }
func (s *sleeper) Paradigm() string { return workload.ParadigmActor }
func (s *sleeper) Run(sched *cell.Scheduler) error {
	c := cell.New(sched, 0)
	cell.When(c, func(*int) { time.Sleep(s.d) })
	return nil
}
func (s *sleeper) Outcome() workload.Outcome { return workload.Outcome{"slept": s.d.String()} }

func newTestEngine(t *testing.T, opts ...engine.Option) (*engine.Engine, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	reg := builtin.NewRegistry()
	reg.Register(workload.Descriptor{
		Key:      "sleeper",
		Name:     "Sleeper",
		Paradigm: workload.ParadigmActor,
		Defaults: workload.Params{"ms": 10},
	}, func(p workload.Params) (workload.Benchmark, error) {
		return &sleeper{d: time.Duration(p.Get("ms", 10)) * time.Millisecond}, nil
	})

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	eng := engine.NewEngine(s, reg, logger, opts...)
	t.Cleanup(eng.Wait)
	return eng, s
}

func makeRun(benchmark string, params map[string]uint64) *model.Run {
	timeout := 10
	return &model.Run{
		ID:          model.NewID(),
		Status:      model.StatusPending,
		Benchmark:   benchmark,
		Params:      params,
		Cores:       2,
		Repetitions: 3,
		TimeoutS:    &timeout,
		CreatedAt:   time.Now().UTC(),
	}
}

// waitForStatus polls the store until the run reaches the expected status.
func waitForStatus(t *testing.T, s store.Store, id, expected string, timeout time.Duration) *model.Run {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		r, err := s.GetRun(context.Background(), id)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if r.Status == expected {
			return r
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s did not reach status %q within %v", id, expected, timeout)
	return nil
}

func TestSubmitHappyPath(t *testing.T) {
	eng, s := newTestEngine(t)

	r := makeRun("Fib", map[string]uint64{"index": 15})
	if err := eng.Submit(context.Background(), r); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if r.Benchmark != "fib" || r.Name != "Fib" || r.Paradigm != model.ParadigmActor {
		t.Errorf("resolved run = %q/%q/%q", r.Benchmark, r.Name, r.Paradigm)
	}

	completed := waitForStatus(t, s, r.ID, model.StatusCompleted, 5*time.Second)
	if completed.MeanMS == nil || completed.MedianMS == nil {
		t.Fatal("mean or median not recorded")
	}
	if len(completed.SamplesMS) != 3 {
		t.Errorf("samples = %d, want 3", len(completed.SamplesMS))
	}
	if completed.Outcome["result"] != float64(610) {
		t.Errorf("outcome result = %v, want 610", completed.Outcome["result"])
	}
	if completed.StartedAt == nil || completed.FinishedAt == nil {
		t.Error("started_at or finished_at is nil")
	}

	lines, err := s.GetLogLines(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("GetLogLines: %v", err)
	}
	// start line, three repetitions, summary line
	if len(lines) != 5 {
		t.Errorf("log lines = %d, want 5", len(lines))
	}
}

func TestSubmitAppliesDefaults(t *testing.T) {
	eng, s := newTestEngine(t, engine.WithDefaultCores(3), engine.WithDefaultRepetitions(2))

	r := makeRun("threadring", map[string]uint64{"pass": 100})
	r.Cores = 0
	r.Repetitions = 0
	if err := eng.Submit(context.Background(), r); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	completed := waitForStatus(t, s, r.ID, model.StatusCompleted, 5*time.Second)
	if completed.Cores != 3 || completed.Repetitions != 2 {
		t.Errorf("cores, repetitions = %d, %d, want 3, 2", completed.Cores, completed.Repetitions)
	}
	if completed.Params["actors"] != 100 || completed.Params["pass"] != 100 {
		t.Errorf("params = %v, want actors defaulted and pass kept", completed.Params)
	}
}

func TestSubmitRejectsInvalidRuns(t *testing.T) {
	eng, s := newTestEngine(t)

	tests := map[string]*model.Run{
		"unknown benchmark": makeRun("nbody", nil),
		"unknown parameter": makeRun("fib", map[string]uint64{"workers": 1}),
		"invalid config":    makeRun("threadring", map[string]uint64{"actors": 0}),
	}
	for name, r := range tests {
		t.Run(name, func(t *testing.T) {
			err := eng.Submit(context.Background(), r)
			if !errors.Is(err, engine.ErrInvalidRun) {
				t.Fatalf("Submit error = %v, want ErrInvalidRun", err)
			}
			if _, err := s.GetRun(context.Background(), r.ID); !errors.Is(err, store.ErrNotFound) {
				t.Errorf("rejected run was stored: %v", err)
			}
		})
	}
}

func TestSubmitTimeout(t *testing.T) {
	eng, s := newTestEngine(t)

	r := makeRun("sleeper", map[string]uint64{"ms": 2000})
	timeout := 1
	r.TimeoutS = &timeout
	r.Repetitions = 1
	if err := eng.Submit(context.Background(), r); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	failed := waitForStatus(t, s, r.ID, model.StatusFailed, 5*time.Second)
	if failed.Error == "" {
		t.Error("expected timeout error message")
	}
}

func TestKillInFlight(t *testing.T) {
	eng, s := newTestEngine(t)

	r := makeRun("sleeper", map[string]uint64{"ms": 200})
	r.Repetitions = 50
	if err := eng.Submit(context.Background(), r); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForStatus(t, s, r.ID, model.StatusRunning, 5*time.Second)

	if err := eng.Kill(context.Background(), r.ID); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	killed := waitForStatus(t, s, r.ID, model.StatusKilled, 5*time.Second)
	if killed.FinishedAt == nil {
		t.Error("finished_at is nil")
	}
}

func TestKillFinishedRun(t *testing.T) {
	eng, s := newTestEngine(t)

	r := makeRun("fib", map[string]uint64{"index": 5})
	if err := eng.Submit(context.Background(), r); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForStatus(t, s, r.ID, model.StatusCompleted, 5*time.Second)
	eng.Wait()

	if err := eng.Kill(context.Background(), r.ID); !errors.Is(err, engine.ErrNotRunning) {
		t.Errorf("Kill error = %v, want ErrNotRunning", err)
	}
	if err := eng.Kill(context.Background(), "nonexistent"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Kill error = %v, want ErrNotFound", err)
	}
}

func TestShutdownKillsInFlightRuns(t *testing.T) {
	eng, s := newTestEngine(t)

	ids := make([]string, 3)
	for i := range ids {
		r := makeRun("sleeper", map[string]uint64{"ms": 200})
		r.Repetitions = 50
		if err := eng.Submit(context.Background(), r); err != nil {
			t.Fatalf("Submit: %v", err)
		}
		ids[i] = r.ID
	}
	for _, id := range ids {
		waitForStatus(t, s, id, model.StatusRunning, 5*time.Second)
	}

	eng.Shutdown()

	for _, id := range ids {
		r, err := s.GetRun(context.Background(), id)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if r.Status != model.StatusKilled {
			t.Errorf("run %s status = %q, want %q", id, r.Status, model.StatusKilled)
		}
	}
}

func TestSubmitStreamsProgress(t *testing.T) {
	eng, s := newTestEngine(t)

	r := makeRun("sleeper", map[string]uint64{"ms": 100})
	r.Repetitions = 2
	if err := eng.Submit(context.Background(), r); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	ch, unsub := eng.Feed().Subscribe(r.ID)
	defer unsub()

	// Events published before the subscription are replayed.
	var events []engine.Event
	timeout := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case ev, ok := <-ch:
			if ok {
				events = append(events, ev)
			}
			done = !ok
		case <-timeout:
			t.Fatal("run feed did not close")
		}
	}
	waitForStatus(t, s, r.ID, model.StatusCompleted, 5*time.Second)

	want := []string{engine.EventStart, engine.EventRepetition, engine.EventRepetition, engine.EventSummary}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(want), events)
	}
	for i, ev := range events {
		if ev.Kind != want[i] {
			t.Errorf("event %d kind = %q, want %q", i, ev.Kind, want[i])
		}
	}
	start, ok := events[0].Data.(engine.StartData)
	if !ok || start.Benchmark != "sleeper" || start.Repetitions != 2 {
		t.Errorf("start data = %+v", events[0].Data)
	}
	for i, ev := range events[1:3] {
		s, ok := ev.Data.(harness.Sample)
		if !ok {
			t.Fatalf("repetition data is %T, want harness.Sample", ev.Data)
		}
		if s.Repetition != i || s.Duration < 100*time.Millisecond {
			t.Errorf("sample %d = %+v", i, s)
		}
	}
	if st, ok := events[3].Data.(harness.Stats); !ok || st.Count != 2 {
		t.Errorf("summary data = %+v, want stats over 2 samples", events[3].Data)
	}
}

func TestKillPublishesAbort(t *testing.T) {
	eng, s := newTestEngine(t)

	r := makeRun("sleeper", map[string]uint64{"ms": 200})
	r.Repetitions = 50
	if err := eng.Submit(context.Background(), r); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	ch, unsub := eng.Feed().Subscribe(r.ID)
	defer unsub()
	waitForStatus(t, s, r.ID, model.StatusRunning, 5*time.Second)

	if err := eng.Kill(context.Background(), r.ID); err != nil {
		t.Fatalf("Kill: %v", err)
	}

	var last engine.Event
	for ev := range ch {
		last = ev
	}
	abort, ok := last.Data.(engine.AbortData)
	if last.Kind != engine.EventAbort || !ok {
		t.Fatalf("last event = %+v, want abort", last)
	}
	if abort.Status != model.StatusKilled {
		t.Errorf("abort status = %q, want %q", abort.Status, model.StatusKilled)
	}
	if eng.InFlight() != 0 {
		t.Errorf("InFlight = %d after kill, want 0", eng.InFlight())
	}
}

func TestSubmitConcurrent(t *testing.T) {
	eng, s := newTestEngine(t)

	ids := make([]string, 5)
	for i := range ids {
		r := makeRun("quicksort", map[string]uint64{"dataset": 2000, "threshold": 64})
		ids[i] = r.ID
		if err := eng.Submit(context.Background(), r); err != nil {
			t.Fatalf("Submit[%d]: %v", i, err)
		}
	}

	for _, id := range ids {
		r := waitForStatus(t, s, id, model.StatusCompleted, 10*time.Second)
		if r.Outcome["sorted"] != true {
			t.Errorf("run %s outcome = %v, want sorted", id, r.Outcome)
		}
	}
}

func TestExecuteSynchronous(t *testing.T) {
	eng, _ := newTestEngine(t)

	var samples []harness.Sample
	r := makeRun("radix", map[string]uint64{"dataset": 500, "max": 1024})
	r.Scale = true
	sum, err := eng.Execute(context.Background(), r, func(s harness.Sample) {
		samples = append(samples, s)
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// scale over cores 1..2 with three repetitions each
	if len(samples) != 6 || len(sum.Samples) != 6 {
		t.Errorf("samples = %d/%d, want 6", len(samples), len(sum.Samples))
	}
	if sum.Outcome["sorted"] != true {
		t.Errorf("outcome = %v, want sorted", sum.Outcome)
	}
}

func TestExecuteWithoutStore(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	eng := engine.NewEngine(nil, builtin.NewRegistry(), logger)

	r := makeRun("fib", map[string]uint64{"index": 10})
	r.Repetitions = 1
	sum, err := eng.Execute(context.Background(), r, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if sum.Outcome["result"] != uint64(55) {
		t.Errorf("result = %v, want 55", sum.Outcome["result"])
	}
}

func TestExecuteTimeoutBoundsWholeMeasurement(t *testing.T) {
	eng, _ := newTestEngine(t)

	// Every repetition fits the timeout on its own; ten of them do not.
	r := makeRun("sleeper", map[string]uint64{"ms": 300})
	r.Cores = 1
	r.Repetitions = 10
	timeout := 1
	r.TimeoutS = &timeout

	start := time.Now()
	_, err := eng.Execute(context.Background(), r, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Execute error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Execute returned after %v, want about 1s", elapsed)
	}
}
