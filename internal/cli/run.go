package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/seantiz/savina/internal/config"
	"github.com/seantiz/savina/internal/engine"
	"github.com/seantiz/savina/internal/harness"
	"github.com/seantiz/savina/internal/model"
)

const (
	runDesc = `Measure one benchmark.

Every repetition runs on a fresh scheduler with one worker per core. With
--scale the benchmark is measured on every core count from 1 to --cores.
`
	runExample = `  # Fibonacci of 30 on 8 cores, 20 repetitions
  savina run fib --param index=30 --cores 8 --reps 20

  # CSV summary for the quicksort with a different seed
  savina run quicksort --seed 7 --csv

  # Scalability lines for the thread ring
  savina run threadring --scale --cores 16
`
)

// runFlags are the measurement flags shared by run and suite.
type runFlags struct {
	cores   int
	reps    int
	scale   bool
	csv     bool
	timeout time.Duration
}

func readRunFlags(cc *cobra.Command) (runFlags, error) {
	var (
		f    runFlags
		merr error
		err  error
	)
	flags := cc.Flags()

	if f.cores, err = flags.GetInt("cores"); err != nil {
		merr = multierror.Append(merr, err)
	}
	if f.reps, err = flags.GetInt("reps"); err != nil {
		merr = multierror.Append(merr, err)
	}
	if f.scale, err = flags.GetBool("scale"); err != nil {
		merr = multierror.Append(merr, err)
	}
	if f.csv, err = flags.GetBool("csv"); err != nil {
		merr = multierror.Append(merr, err)
	}
	if f.timeout, err = flags.GetDuration("timeout"); err != nil {
		merr = multierror.Append(merr, err)
	}

	if f.cores < 0 {
		merr = multierror.Append(merr, fmt.Errorf("--cores must not be negative, got %d", f.cores))
	}
	if f.reps < 0 {
		merr = multierror.Append(merr, fmt.Errorf("--reps must not be negative, got %d", f.reps))
	}
	if f.timeout < 0 {
		merr = multierror.Append(merr, fmt.Errorf("--timeout must not be negative, got %s", f.timeout))
	}

	if merr != nil {
		return f, fmt.Errorf("%w: %w", ErrInvalidArgument, merr)
	}
	return f, nil
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Int("cores", 0, "Worker count per scheduler (default from SAVINA_CORES)")
	cmd.Flags().Int("reps", 0, "Repetitions per core count (default from SAVINA_REPS)")
	cmd.Flags().Bool("scale", false, "Measure on every core count from 1 to --cores")
	cmd.Flags().Bool("csv", false, "Write benchmark,mean,median,error CSV instead of a table")
	cmd.Flags().Duration("timeout", 0, "Timeout for the whole measurement, every repetition included (default from SAVINA_TIMEOUT_S)")
}

// newWriter picks the output format: scale lines, CSV, or a console table.
func (f runFlags) newWriter(w io.Writer) harness.Writer {
	switch {
	case f.scale:
		return harness.NewScaleWriter(w)
	case f.csv:
		return harness.NewCSVWriter(w)
	default:
		return harness.NewConsoleWriter(w)
	}
}

// parseParams turns "k=v" pairs into benchmark parameters, reporting every
// malformed pair.
func parseParams(pairs []string) (map[string]uint64, error) {
	params := make(map[string]uint64, len(pairs))
	var merr error
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			merr = multierror.Append(merr, fmt.Errorf("param %q is not key=value", pair))
			continue
		}
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("param %s: %w", k, err))
			continue
		}
		params[k] = n
	}
	if merr != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, merr)
	}
	return params, nil
}

// NewRunCmd returns the run command.
func NewRunCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run <benchmark>",
		Short:   "Measure one benchmark",
		Long:    runDesc,
		Example: runExample,
		Args:    cobra.ExactArgs(1),
		RunE: func(cc *cobra.Command, args []string) error {
			f, err := readRunFlags(cc)
			if err != nil {
				return err
			}
			pairs, err := cc.Flags().GetStringArray("param")
			if err != nil {
				return err
			}
			params, err := parseParams(pairs)
			if err != nil {
				return err
			}
			if cc.Flags().Changed("seed") {
				seed, err := cc.Flags().GetUint64("seed")
				if err != nil {
					return err
				}
				params["seed"] = seed
			}

			ctx, stop := signal.NotifyContext(cc.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eng := newEngine(cfg)
			w := f.newWriter(cc.OutOrStdout())
			if err := w.WriteHeader(); err != nil {
				return err
			}
			if err := measure(ctx, eng, w, f, args[0], params); err != nil {
				return err
			}
			return w.Flush()
		},
	}

	addRunFlags(cmd)
	cmd.Flags().StringArray("param", nil, "Benchmark parameter as key=value (repeatable)")
	cmd.Flags().Uint64("seed", 0, "Random seed for benchmarks that generate data")

	return cmd
}

// measure runs one benchmark synchronously and feeds w.
func measure(ctx context.Context, eng *engine.Engine, w harness.Writer, f runFlags, name string, params map[string]uint64) error {
	r := &model.Run{
		ID:          model.NewID(),
		Benchmark:   name,
		Params:      params,
		Cores:       f.cores,
		Repetitions: f.reps,
		Scale:       f.scale,
	}
	if f.timeout > 0 {
		s := int(f.timeout / time.Second)
		if s == 0 {
			s = 1
		}
		r.TimeoutS = &s
	}

	var werr error
	sum, err := eng.Execute(ctx, r, func(s harness.Sample) {
		if err := w.WriteSample(s); err != nil && werr == nil {
			werr = err
		}
	})
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if werr != nil {
		return werr
	}
	return w.WriteSummary(sum)
}
