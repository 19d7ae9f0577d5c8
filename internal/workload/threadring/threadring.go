// Package threadring implements the Thread Ring workload: a token is passed
// around a cycle of ring actors until its hop budget runs out.
package threadring

import (
	"fmt"
	"sync/atomic"

	"github.com/seantiz/savina/internal/cell"
	"github.com/seantiz/savina/internal/workload"
)

// Name is the report name of the workload.
const Name = "Thread Ring"

// Defaults from the Savina suite.
const (
	DefaultActors = 100
	DefaultPass   = 100000
)

// Config parameterises a run.
type Config struct {
	Actors uint64 `json:"actors" yaml:"actors"`
	Pass   uint64 `json:"pass" yaml:"pass"`
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.Actors == 0 {
		return fmt.Errorf("%w: thread ring needs at least one actor", workload.ErrInvalidConfig)
	}
	return nil
}

// actor is one member of the ring.
type actor struct {
	index uint64
	next  *cell.Cell[actor]
}

// Benchmark passes a token Pass times around a ring of Actors cells.
type Benchmark struct {
	cfg   Config
	first *cell.Cell[actor]

	hops atomic.Uint64

	// written by the final pass
	broken    bool
	stoppedAt uint64
}

var _ workload.Benchmark = (*Benchmark)(nil)

// New creates a benchmark for cfg.
func New(cfg Config) *Benchmark {
	return &Benchmark{cfg: cfg}
}

// FromParams builds a benchmark from the "actors" and "pass" parameters.
func FromParams(p workload.Params) (workload.Benchmark, error) {
	cfg := Config{
		Actors: p.Get("actors", DefaultActors),
		Pass:   p.Get("pass", DefaultPass),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return New(cfg), nil
}

// Name implements workload.Benchmark.
func (b *Benchmark) Name() string { return Name }

// Paradigm implements workload.Benchmark.
func (b *Benchmark) Paradigm() string { return workload.ParadigmActor }

// Run wires the ring and, when there is anything to pass, sends the token to
// the first actor.
func (b *Benchmark) Run(s *cell.Scheduler) error {
	if err := b.cfg.Validate(); err != nil {
		return err
	}

	// Build back to front so each actor is created with its successor; the
	// first actor is closed into the cycle afterwards.
	first := cell.New(s, actor{index: 0})
	next := first
	for k := b.cfg.Actors - 1; k > 0; k-- {
		next = cell.New(s, actor{index: k, next: next})
	}
	last := next
	cell.When(first, func(a *actor) {
		a.next = last
	})
	b.first = first

	if b.cfg.Pass > 0 {
		b.pass(first, b.cfg.Pass)
	}
	return nil
}

func (b *Benchmark) pass(c *cell.Cell[actor], remaining uint64) {
	cell.When(c, func(a *actor) {
		if remaining > 0 {
			if a.next == nil {
				panic(fmt.Sprintf("threadring: actor %d has no successor", a.index))
			}
			b.hops.Add(1)
			b.pass(a.next, remaining-1)
			return
		}
		a.next = nil
		b.broken = true
		b.stoppedAt = a.index
	})
}

// Hops returns the number of times the token was forwarded.
func (b *Benchmark) Hops() uint64 {
	return b.hops.Load()
}

// Outcome implements workload.Benchmark.
func (b *Benchmark) Outcome() workload.Outcome {
	return workload.Outcome{
		"actors":     b.cfg.Actors,
		"pass":       b.cfg.Pass,
		"hops":       b.hops.Load(),
		"broken":     b.broken,
		"stopped_at": b.stoppedAt,
	}
}
