package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/seantiz/savina/internal/cell"
	"github.com/seantiz/savina/internal/workload"
)

// Defaults applied to zero Options fields.
const (
	DefaultCores       = 4
	DefaultRepetitions = 10
	DefaultTimeout     = 5 * time.Minute
)

// ErrNoRepetitions is returned when Options ask for nothing to be measured.
var ErrNoRepetitions = errors.New("at least one repetition is required")

// Factory builds a fresh benchmark instance for one repetition.
type Factory func() (workload.Benchmark, error)

// Options controls a measurement.
type Options struct {
	// Cores is the scheduler worker count, or the largest one when Scale is
	// set.
	Cores int
	// Repetitions per core count.
	Repetitions int
	// Scale repeats the measurement for every core count from 1 to Cores.
	Scale bool
	// Timeout bounds a single repetition.
	Timeout time.Duration

	Logger *slog.Logger

	// Progress, if set, is called after every repetition.
	Progress func(Sample)
}

func (o Options) withDefaults() Options {
	if o.Cores <= 0 {
		o.Cores = DefaultCores
	}
	if o.Repetitions == 0 {
		o.Repetitions = DefaultRepetitions
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Sample is one timed repetition.
type Sample struct {
	Benchmark  string           `json:"benchmark"`
	Paradigm   string           `json:"paradigm"`
	Cores      int              `json:"cores"`
	Repetition int              `json:"repetition"`
	Duration   time.Duration    `json:"duration_ns"`
	Operations uint64           `json:"operations"`
	Outcome    workload.Outcome `json:"outcome,omitempty"`
}

// Summary is the result of a measurement.
type Summary struct {
	Benchmark   string           `json:"benchmark"`
	Paradigm    string           `json:"paradigm"`
	Cores       int              `json:"cores"`
	Repetitions int              `json:"repetitions"`
	Scale       bool             `json:"scale"`
	Stats       Stats            `json:"stats"`
	Samples     []Sample         `json:"samples"`
	Outcome     workload.Outcome `json:"outcome,omitempty"`
}

// Measure runs the benchmark built by factory opts.Repetitions times for each
// core count and summarises the durations. A repetition that fails or times
// out aborts the measurement.
func Measure(ctx context.Context, factory Factory, opts Options) (Summary, error) {
	opts = opts.withDefaults()
	if opts.Repetitions < 0 {
		return Summary{}, ErrNoRepetitions
	}

	minCores := opts.Cores
	if opts.Scale {
		minCores = 1
	}

	var (
		sum       Summary
		durations []time.Duration
	)
	for cores := minCores; cores <= opts.Cores; cores++ {
		for rep := range opts.Repetitions {
			if err := ctx.Err(); err != nil {
				return sum, fmt.Errorf("measurement cancelled: %w", err)
			}

			s, err := runOnce(ctx, factory, cores, rep, opts)
			if err != nil {
				if s.Benchmark != "" {
					repetitionFailures.WithLabelValues(s.Benchmark).Inc()
				}
				return sum, err
			}

			sum.Benchmark, sum.Paradigm = s.Benchmark, s.Paradigm
			sum.Outcome = s.Outcome
			sum.Samples = append(sum.Samples, s)
			durations = append(durations, s.Duration)

			repetitionDuration.WithLabelValues(s.Benchmark, strconv.Itoa(cores)).Observe(s.Duration.Seconds())
			operationsExecuted.WithLabelValues(s.Benchmark).Add(float64(s.Operations))

			opts.Logger.Debug("harness: repetition finished",
				"benchmark", s.Benchmark,
				"cores", cores,
				"repetition", rep,
				"duration_ms", float64(s.Duration.Microseconds())/1000,
			)
			if opts.Progress != nil {
				opts.Progress(s)
			}
		}
	}

	sum.Cores = opts.Cores
	sum.Repetitions = opts.Repetitions
	sum.Scale = opts.Scale
	sum.Stats = Summarize(durations)
	return sum, nil
}

func runOnce(ctx context.Context, factory Factory, cores, rep int, opts Options) (Sample, error) {
	b, err := factory()
	if err != nil {
		return Sample{}, fmt.Errorf("create benchmark: %w", err)
	}
	s := Sample{
		Benchmark:  b.Name(),
		Paradigm:   b.Paradigm(),
		Cores:      cores,
		Repetition: rep,
	}

	sched, err := cell.NewScheduler(cell.WithWorkers(cores), cell.WithLogger(opts.Logger))
	if err != nil {
		return s, err
	}
	defer sched.Close()

	runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	start := time.Now()
	if err := b.Run(sched); err != nil {
		return s, fmt.Errorf("%s: %w", s.Benchmark, err)
	}
	if err := sched.Quiesce(runCtx); err != nil {
		return s, fmt.Errorf("%s (cores=%d, repetition=%d): %w", s.Benchmark, cores, rep, err)
	}
	s.Duration = time.Since(start)
	s.Operations = sched.Stats().Executed
	s.Outcome = b.Outcome()
	return s, nil
}
