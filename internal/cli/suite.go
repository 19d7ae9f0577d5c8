package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/seantiz/savina/internal/config"
	"github.com/seantiz/savina/internal/workload"
	"github.com/seantiz/savina/internal/workload/builtin"
)

const suiteExample = `  # Measure every benchmark of a suite file
  savina suite benchmarks.yaml

  # Override the suite's core count and emit CSV
  savina suite benchmarks.yaml --cores 8 --csv
`

// NewSuiteCmd returns the suite command.
func NewSuiteCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "suite <file.yaml>",
		Short:   "Measure every benchmark listed in a suite file",
		Example: suiteExample,
		Args:    cobra.ExactArgs(1),
		RunE: func(cc *cobra.Command, args []string) error {
			f, err := readRunFlags(cc)
			if err != nil {
				return err
			}

			suite, err := config.LoadSuite(args[0])
			if err != nil {
				return err
			}

			reg := builtin.NewRegistry()
			if err := suite.Validate(func(name string, params map[string]uint64) error {
				_, err := reg.New(name, workload.Params(params))
				return err
			}); err != nil {
				return fmt.Errorf("suite %s: %w", args[0], err)
			}

			// Flags override the suite, which overrides the environment.
			if !cc.Flags().Changed("cores") {
				f.cores = suite.Cores
			}
			if !cc.Flags().Changed("reps") {
				f.reps = suite.Repetitions
			}
			if !cc.Flags().Changed("scale") {
				f.scale = suite.Scale
			}
			if !cc.Flags().Changed("timeout") && suite.TimeoutS > 0 {
				f.timeout = time.Duration(suite.TimeoutS) * time.Second
			}

			ctx, stop := signal.NotifyContext(cc.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eng := newEngine(cfg)
			w := f.newWriter(cc.OutOrStdout())
			if err := w.WriteHeader(); err != nil {
				return err
			}
			for _, e := range suite.Benchmarks {
				e = suite.Resolved(e)
				ef := f
				if cc.Flags().Changed("cores") {
					e.Cores = f.cores
				}
				if cc.Flags().Changed("reps") {
					e.Repetitions = f.reps
				}
				ef.cores, ef.reps = e.Cores, e.Repetitions

				slog.Info("suite: measuring", "benchmark", e.Name, "cores", ef.cores, "repetitions", ef.reps)
				if err := measure(ctx, eng, w, ef, e.Name, e.Params); err != nil {
					return err
				}
			}
			return w.Flush()
		},
	}

	addRunFlags(cmd)

	return cmd
}
