// testserver starts the API on an in-memory database with the built-in
// benchmarks plus a sleeper benchmark, for end-to-end tests.
// Usage: go run ./cmd/testserver
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/seantiz/savina/internal/api"
	"github.com/seantiz/savina/internal/cell"
	"github.com/seantiz/savina/internal/engine"
	"github.com/seantiz/savina/internal/store"
	"github.com/seantiz/savina/internal/workload"
	"github.com/seantiz/savina/internal/workload/builtin"
)

// sleeper holds one cell for a configurable number of milliseconds, so runs
// stay in flight long enough to be streamed and killed.
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
func (s *sleeper) Outcome() workload.Outcome {
	return workload.Outcome{"slept_ms": s.d.Milliseconds()}
}

func main() {
	addr := ":8080"
	if v := os.Getenv("SAVINA_LISTEN_ADDR"); v != "" {
		addr = v
	}

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	reg := builtin.NewRegistry()
	reg.Register(workload.Descriptor{
		Key:         "sleeper",
		Name:        "Sleeper",
		Paradigm:    workload.ParadigmActor,
		Description: "Holds one cell for ms milliseconds.",
		Defaults:    workload.Params{"ms": 100},
	}, func(p workload.Params) (workload.Benchmark, error) {
		return &sleeper{d: time.Duration(p.Get("ms", 100)) * time.Millisecond}, nil
	})

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	eng := engine.NewEngine(db, reg, logger, engine.WithDefaultRepetitions(3))
	srv := api.NewServer(addr, db, eng, logger)

	logger.Info("testserver: starting", "addr", addr)
	if err := srv.Run(context.Background()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
