// Package cli implements the savina command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/seantiz/savina/internal/config"
	"github.com/seantiz/savina/internal/engine"
	"github.com/seantiz/savina/internal/workload/builtin"
)

// Version is stamped at build time.
var Version = "dev"

// ErrInvalidArgument wraps malformed flag values.
var ErrInvalidArgument = errors.New("invalid argument")

// NewRootCmd returns the root command with every subcommand attached.
// Environment configuration is read once, here.
func NewRootCmd(name, shortDesc, longDesc string) *cobra.Command {
	cfg := config.Load()

	cmd := &cobra.Command{
		Use:           name,
		Short:         shortDesc,
		Long:          longDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}

	cmd.PersistentFlags().String("log_level", cfg.LogLevel.String(), "Set the log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log_format", "text", "Set the log format (text, json)")

	cmd.PersistentPreRunE = func(cc *cobra.Command, _ []string) error {
		flags := cc.Flags()

		var merr error

		logLevel, err := flags.GetString("log_level")
		if err != nil {
			merr = multierror.Append(merr, err)
		}

		logFormat, err := flags.GetString("log_format")
		if err != nil {
			merr = multierror.Append(merr, err)
		}

		if merr != nil {
			return fmt.Errorf("%w: %w", ErrInvalidArgument, merr)
		}

		h, err := config.NewHandler(cc.ErrOrStderr(), config.ParseLogLevel(logLevel), logFormat)
		if err != nil {
			return fmt.Errorf("failed creating log handler: %w", err)
		}
		slog.SetDefault(slog.New(h))

		return nil
	}

	cmd.AddCommand(NewListCmd())
	cmd.AddCommand(NewRunCmd(cfg))
	cmd.AddCommand(NewSuiteCmd(cfg))
	cmd.AddCommand(NewServeCmd(cfg))

	return cmd
}

// newEngine builds an engine for synchronous use on the built-in benchmarks.
func newEngine(cfg config.Config) *engine.Engine {
	return engine.NewEngine(nil, builtin.NewRegistry(), slog.Default(),
		engine.WithDefaultCores(cfg.Cores),
		engine.WithDefaultRepetitions(cfg.Repetitions),
		engine.WithDefaultTimeout(cfg.TimeoutS),
	)
}

func writeLine(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format+"\n", args...)
}
