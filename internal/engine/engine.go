package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seantiz/savina/internal/harness"
	"github.com/seantiz/savina/internal/model"
	"github.com/seantiz/savina/internal/store"
	"github.com/seantiz/savina/internal/workload"
)

// DefaultTimeoutS is the default timeout in seconds when none is specified.
const DefaultTimeoutS = 300

var (
	// ErrInvalidRun wraps every reason a run request is rejected before it is
	// stored: an unknown benchmark, unknown parameters, or a configuration the
	// benchmark refuses.
	ErrInvalidRun = errors.New("invalid run")

	// ErrNotRunning is returned by Kill for a run that is already finished.
	ErrNotRunning = errors.New("run is not in flight")
)

// Option configures an Engine.
type Option func(*Engine)

// WithDefaultCores sets the core count used when a run does not give one.
func WithDefaultCores(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.cores = n
		}
	}
}

// WithDefaultRepetitions sets the repetition count used when a run does not
// give one.
func WithDefaultRepetitions(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.repetitions = n
		}
	}
}

// WithDefaultTimeout sets the per-run timeout in seconds used when a run does
// not give one.
func WithDefaultTimeout(seconds int) Option {
	return func(e *Engine) {
		if seconds > 0 {
			e.timeoutS = seconds
		}
	}
}

// Engine orchestrates benchmark runs.
type Engine struct {
	store    store.Store
	registry *workload.Registry
	logger   *slog.Logger
	wg       sync.WaitGroup
	feed     *Feed

	cores       int
	repetitions int
	timeoutS    int

	mu       sync.Mutex
	inFlight map[string]*flight
}

// flight is the cancellation handle of a submitted run.
type flight struct {
	cancel context.CancelFunc
	killed atomic.Bool
}

// NewEngine creates a new execution engine. s may be nil for an engine that
// is only used through Execute.
func NewEngine(s store.Store, reg *workload.Registry, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:       s,
		registry:    reg,
		logger:      logger,
		feed:        NewFeed(),
		cores:       harness.DefaultCores,
		repetitions: harness.DefaultRepetitions,
		timeoutS:    DefaultTimeoutS,
		inFlight:    make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, d := range reg.List() {
		initRunMetrics(d.Key)
	}
	return e
}

// Feed returns the engine's run feed for SSE subscription.
func (e *Engine) Feed() *Feed {
	return e.feed
}

// InFlight returns the number of submitted runs that have not finished.
func (e *Engine) InFlight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inFlight)
}

// Registry returns the benchmark registry runs are resolved against.
func (e *Engine) Registry() *workload.Registry {
	return e.registry
}

// prepare resolves the benchmark of r, fills in defaults, and checks that the
// parameters build a benchmark. It returns the factory for repetitions.
func (e *Engine) prepare(r *model.Run) (harness.Factory, error) {
	d, _, err := e.registry.Resolve(r.Benchmark)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRun, err)
	}

	r.Benchmark = d.Key
	r.Name = d.Name
	r.Paradigm = d.Paradigm
	if r.Cores <= 0 {
		r.Cores = e.cores
	}
	if r.Repetitions <= 0 {
		r.Repetitions = e.repetitions
	}

	params := workload.Params(r.Params)
	if _, err := e.registry.New(d.Key, params); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRun, err)
	}
	r.Params = params.WithDefaults(d.Defaults)

	key := d.Key
	return func() (workload.Benchmark, error) {
		return e.registry.New(key, params)
	}, nil
}

func (e *Engine) timeout(r *model.Run) int {
	if r.TimeoutS != nil && *r.TimeoutS > 0 {
		return *r.TimeoutS
	}
	return e.timeoutS
}

// Submit validates the run, stores it as pending, and measures it in a
// goroutine. The goroutine operates on a copy of the run to avoid data races
// with the caller.
func (e *Engine) Submit(ctx context.Context, r *model.Run) error {
	factory, err := e.prepare(r)
	if err != nil {
		return err
	}
	if err := e.store.CreateRun(ctx, r); err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	runCtx, cancel := context.WithTimeout(context.Background(), time.Duration(e.timeout(r))*time.Second)
	f := &flight{cancel: cancel}
	e.mu.Lock()
	e.inFlight[r.ID] = f
	e.mu.Unlock()

	rCopy := *r
	e.wg.Go(func() {
		defer cancel()
		e.execute(runCtx, &rCopy, f, factory)
	})

	return nil
}

// Kill cancels an in-flight run. The run is marked killed once its current
// repetition stops.
func (e *Engine) Kill(ctx context.Context, id string) error {
	e.mu.Lock()
	f, ok := e.inFlight[id]
	e.mu.Unlock()

	if ok {
		f.killed.Store(true)
		f.cancel()
		return nil
	}

	r, err := e.store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if model.Terminal(r.Status) {
		return fmt.Errorf("%w: status is %s", ErrNotRunning, r.Status)
	}
	return e.store.UpdateRunStatus(ctx, id, model.StatusKilled)
}

// Wait blocks until all in-flight run goroutines complete.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Shutdown kills every in-flight run and waits for them to be recorded.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	for _, f := range e.inFlight {
		f.killed.Store(true)
		f.cancel()
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// Execute measures r synchronously without touching the store. progress, if
// set, receives every repetition. The run timeout bounds the whole
// measurement, as it does for submitted runs.
func (e *Engine) Execute(ctx context.Context, r *model.Run, progress func(harness.Sample)) (harness.Summary, error) {
	factory, err := e.prepare(r)
	if err != nil {
		return harness.Summary{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(e.timeout(r))*time.Second)
	defer cancel()

	activeRuns.Inc()
	defer activeRuns.Dec()

	start := time.Now()
	sum, err := harness.Measure(ctx, factory, e.harnessOptions(r, progress))
	runDuration.WithLabelValues(r.Benchmark).Observe(time.Since(start).Seconds())
	if err != nil {
		runsTotal.WithLabelValues(r.Benchmark, model.StatusFailed).Inc()
		return sum, err
	}
	runsTotal.WithLabelValues(r.Benchmark, model.StatusCompleted).Inc()
	return sum, nil
}

func (e *Engine) harnessOptions(r *model.Run, progress func(harness.Sample)) harness.Options {
	return harness.Options{
		Cores:       r.Cores,
		Repetitions: r.Repetitions,
		Scale:       r.Scale,
		Timeout:     time.Duration(e.timeout(r)) * time.Second,
		Logger:      e.logger,
		Progress:    progress,
	}
}

// execute runs the lifecycle of a submitted run: pending→running→completed,
// failed or killed.
func (e *Engine) execute(ctx context.Context, r *model.Run, f *flight, factory harness.Factory) {
	defer func() {
		e.mu.Lock()
		delete(e.inFlight, r.ID)
		e.mu.Unlock()
		e.feed.Close(r.ID)
	}()

	if err := e.store.UpdateRunStatus(context.Background(), r.ID, model.StatusRunning); err != nil {
		// A run killed while still pending is already terminal.
		if errors.Is(err, store.ErrInvalidTransition) {
			e.logger.Info("run finished before it started", "run_id", r.ID, "error", err)
			return
		}
		e.logger.Error("failed to transition to running", "run_id", r.ID, "error", err)
		e.finish(r, model.StatusFailed, nil, fmt.Sprintf("failed to start: %v", err))
		return
	}

	start := time.Now()
	activeRuns.Inc()
	defer activeRuns.Dec()

	// Event lines go to SQLite for history; whole events go to the feed.
	var seq atomic.Int32
	emit := func(ev Event) {
		currentSeq := int(seq.Add(1) - 1)
		if err := e.store.InsertLogLine(context.Background(), r.ID, currentSeq, ev.Line); err != nil {
			e.logger.Error("failed to persist log line", "run_id", r.ID, "seq", currentSeq, "error", err)
		}
		e.feed.Publish(r.ID, ev)
	}

	emit(startEvent(
		fmt.Sprintf("starting %s: cores=%d repetitions=%d scale=%t", r.Name, r.Cores, r.Repetitions, r.Scale),
		StartData{
			Benchmark:   r.Benchmark,
			Name:        r.Name,
			Paradigm:    r.Paradigm,
			Cores:       r.Cores,
			Repetitions: r.Repetitions,
			Scale:       r.Scale,
		},
	))
	e.logger.Info("engine: run started",
		"run_id", r.ID,
		"benchmark", r.Benchmark,
		"cores", r.Cores,
		"repetitions", r.Repetitions,
	)

	sum, err := harness.Measure(ctx, factory, e.harnessOptions(r, func(s harness.Sample) {
		emit(repetitionEvent(fmt.Sprintf("cores=%d repetition=%d duration_ms=%.3f operations=%d",
			s.Cores, s.Repetition, float64(s.Duration.Microseconds())/1000, s.Operations), s))
	}))
	runDuration.WithLabelValues(r.Benchmark).Observe(time.Since(start).Seconds())

	if err != nil {
		switch {
		case f.killed.Load():
			emit(abortEvent("killed", model.StatusKilled, "killed"))
			e.finish(r, model.StatusKilled, &start, "killed")
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			msg := fmt.Sprintf("run timed out after %ds", e.timeout(r))
			emit(abortEvent(msg, model.StatusFailed, msg))
			e.finish(r, model.StatusFailed, &start, msg)
		default:
			emit(abortEvent("failed: "+err.Error(), model.StatusFailed, err.Error()))
			e.finish(r, model.StatusFailed, &start, err.Error())
		}
		return
	}

	emit(summaryEvent(fmt.Sprintf("done: mean=%.3fms median=%.3fms error=%.2f%% stddev=%.3f",
		sum.Stats.MeanMS, sum.Stats.MedianMS, sum.Stats.ErrorPct, sum.Stats.StddevMS), sum.Stats))

	r.MeanMS = &sum.Stats.MeanMS
	r.MedianMS = &sum.Stats.MedianMS
	r.ErrorPct = &sum.Stats.ErrorPct
	r.StddevMS = &sum.Stats.StddevMS
	r.SamplesMS = make([]float64, len(sum.Samples))
	for i, s := range sum.Samples {
		r.SamplesMS[i] = float64(s.Duration.Microseconds()) / 1000
	}
	r.Outcome = sum.Outcome
	e.finish(r, model.StatusCompleted, &start, "")
}

// finish records the final status of r. startedAt may be nil if execution
// never started.
func (e *Engine) finish(r *model.Run, status string, startedAt *time.Time, errMsg string) {
	now := time.Now().UTC()
	var durationMS int
	if startedAt != nil {
		durationMS = int(time.Since(*startedAt).Milliseconds())
	}

	r.Status = status
	r.Error = errMsg
	r.DurationMS = &durationMS
	r.StartedAt = startedAt
	r.FinishedAt = &now

	if err := e.store.UpdateRun(context.Background(), r); err != nil {
		e.logger.Error("failed to update finished run", "run_id", r.ID, "status", status, "error", err)
	}
	runsTotal.WithLabelValues(r.Benchmark, status).Inc()
	e.logger.Info("engine: run finished",
		"run_id", r.ID,
		"benchmark", r.Benchmark,
		"status", status,
		"duration_ms", durationMS,
	)
}
