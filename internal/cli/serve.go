package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/seantiz/savina/internal/api"
	"github.com/seantiz/savina/internal/config"
	"github.com/seantiz/savina/internal/engine"
	"github.com/seantiz/savina/internal/store"
	"github.com/seantiz/savina/internal/workload/builtin"
)

// NewServeCmd returns the serve command.
func NewServeCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and record runs in SQLite",
		Args:  cobra.NoArgs,
		RunE: func(cc *cobra.Command, _ []string) error {
			addr, err := cc.Flags().GetString("listen")
			if err != nil {
				return err
			}
			dbPath, err := cc.Flags().GetString("db")
			if err != nil {
				return err
			}

			logger := slog.Default()
			logger.Info("savina: starting", "listen_addr", addr, "db_path", dbPath)

			db, err := store.NewSQLiteStore(dbPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			eng := engine.NewEngine(db, builtin.NewRegistry(), logger,
				engine.WithDefaultCores(cfg.Cores),
				engine.WithDefaultRepetitions(cfg.Repetitions),
				engine.WithDefaultTimeout(cfg.TimeoutS),
			)
			return api.NewServer(addr, db, eng, logger).Run(cc.Context())
		},
	}

	cmd.Flags().String("listen", cfg.ListenAddr, "Address to listen on")
	cmd.Flags().String("db", cfg.DBPath, "SQLite database path")

	return cmd
}
