// Package fib implements the Fibonacci fork-join workload. Every call spawns a
// node cell; interior nodes fork two children and wait for exactly two
// responses before passing their sum to their parent.
package fib

import (
	"fmt"
	"sync/atomic"

	"github.com/seantiz/savina/internal/cell"
	"github.com/seantiz/savina/internal/workload"
)

// Name is the report name of the workload.
const Name = "Fib"

// DefaultIndex is the Fibonacci index computed by the Savina suite.
const DefaultIndex = 25

// Config parameterises a run.
type Config struct {
	Index uint64 `json:"index" yaml:"index"`
}

// node is the state of one Fibonacci call. The root has no parent.
type node struct {
	parent     *cell.Cell[node]
	responses  uint64
	result     uint64
	propagated bool
}

// Benchmark computes Fib(Index) as a tree of cells.
type Benchmark struct {
	cfg   Config
	sched *cell.Scheduler

	nodes        atomic.Uint64
	propagations atomic.Uint64

	// written by the root's final operation
	result uint64
	done   bool
}

var _ workload.Benchmark = (*Benchmark)(nil)

// New creates a benchmark for cfg.
func New(cfg Config) *Benchmark {
	return &Benchmark{cfg: cfg}
}

// FromParams builds a benchmark from the "index" parameter.
func FromParams(p workload.Params) (workload.Benchmark, error) {
	return New(Config{Index: p.Get("index", DefaultIndex)}), nil
}

// Name implements workload.Benchmark.
func (b *Benchmark) Name() string { return Name }

// Paradigm implements workload.Benchmark.
func (b *Benchmark) Paradigm() string { return workload.ParadigmActor }

// Run implements workload.Benchmark.
func (b *Benchmark) Run(s *cell.Scheduler) error {
	b.sched = s
	b.compute(nil, b.cfg.Index)
	return nil
}

// Result returns the root's value. Valid after quiescence.
func (b *Benchmark) Result() (uint64, bool) {
	return b.result, b.done
}

// Outcome implements workload.Benchmark.
func (b *Benchmark) Outcome() workload.Outcome {
	return workload.Outcome{
		"index":        b.cfg.Index,
		"result":       b.result,
		"done":         b.done,
		"nodes":        b.nodes.Load(),
		"propagations": b.propagations.Load(),
	}
}

// compute creates a node under parent and schedules its evaluation.
func (b *Benchmark) compute(parent *cell.Cell[node], n uint64) {
	self := cell.New(b.sched, node{parent: parent})
	b.nodes.Add(1)

	cell.When(self, func(nd *node) {
		if n <= 2 {
			nd.result = 1
			b.propagate(nd)
			return
		}
		b.compute(self, n-1)
		b.compute(self, n-2)
	})
}

// response folds a child's value into c.
func (b *Benchmark) response(c *cell.Cell[node], value uint64) {
	cell.When(c, func(nd *node) {
		nd.result += value
		nd.responses++

		switch {
		case nd.responses == 2:
			b.propagate(nd)
		case nd.responses > 2:
			panic(fmt.Sprintf("fib: node received %d responses", nd.responses))
		}
	})
}

func (b *Benchmark) propagate(nd *node) {
	if nd.propagated {
		panic("fib: node propagated twice")
	}
	nd.propagated = true
	b.propagations.Add(1)

	if nd.parent == nil {
		b.result = nd.result
		b.done = true
		return
	}
	b.response(nd.parent, nd.result)
}
