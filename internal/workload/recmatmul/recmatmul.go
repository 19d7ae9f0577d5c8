// Package recmatmul implements the Recursive Matrix Multiplication workload.
// A master hands block-multiply tasks to a fixed pool of workers; a worker
// either splits its block into eight sub-tasks and gives them back to the
// master, or multiplies it directly and sends the partial result to a shared
// collector. The run ends when every task sent has reported completion.
package recmatmul

import (
	"fmt"
	"math/bits"

	"github.com/seantiz/savina/internal/cell"
	"github.com/seantiz/savina/internal/workload"
)

// Name is the report name of the workload.
const Name = "Recursive Matrix Multiplication"

// Defaults from the Savina suite.
const (
	DefaultWorkers   = 20
	DefaultLength    = 1024
	DefaultThreshold = 16384
)

// Config parameterises a run. Length is the side of the square matrices and
// Threshold the largest block, in cells, a worker multiplies without
// splitting.
type Config struct {
	Workers   uint64 `json:"workers" yaml:"workers"`
	Length    uint64 `json:"length" yaml:"length"`
	Threshold uint64 `json:"threshold" yaml:"threshold"`
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.Workers == 0 {
		return fmt.Errorf("%w: matrix multiply needs at least one worker", workload.ErrInvalidConfig)
	}
	if c.Length == 0 || bits.OnesCount64(c.Length) != 1 {
		return fmt.Errorf("%w: matrix length %d is not a power of two", workload.ErrInvalidConfig, c.Length)
	}
	return nil
}

// Task is one block multiplication: C[srC.., scC..] += A[srA.., scA..] x
// B[srB.., scB..] over a Dimension x Dimension block of Length cells.
type Task struct {
	Priority  uint64
	SrA, ScA  uint64
	SrB, ScB  uint64
	SrC, ScC  uint64
	Length    uint64
	Dimension uint64
}

// split returns the eight sub-tasks of the standard recursive decomposition:
// each quadrant of C receives two products of A and B quadrants.
func (t Task) split() [8]Task {
	d := t.Dimension / 2
	sub := func(srA, scA, srB, scB, srC, scC uint64) Task {
		return Task{
			Priority:  t.Priority + 1,
			SrA:       srA,
			ScA:       scA,
			SrB:       srB,
			ScB:       scB,
			SrC:       srC,
			ScC:       scC,
			Length:    t.Length / 4,
			Dimension: d,
		}
	}
	return [8]Task{
		sub(t.SrA, t.ScA, t.SrB, t.ScB, t.SrC, t.ScC),
		sub(t.SrA, t.ScA+d, t.SrB+d, t.ScB, t.SrC, t.ScC),
		sub(t.SrA, t.ScA, t.SrB, t.ScB+d, t.SrC, t.ScC+d),
		sub(t.SrA, t.ScA+d, t.SrB+d, t.ScB+d, t.SrC, t.ScC+d),
		sub(t.SrA+d, t.ScA, t.SrB, t.ScB, t.SrC+d, t.ScC),
		sub(t.SrA+d, t.ScA+d, t.SrB+d, t.ScB, t.SrC+d, t.ScC),
		sub(t.SrA+d, t.ScA, t.SrB, t.ScB+d, t.SrC+d, t.ScC+d),
		sub(t.SrA+d, t.ScA+d, t.SrB+d, t.ScB+d, t.SrC+d, t.ScC+d),
	}
}

type entry struct {
	row, col, value uint64
}

type master struct {
	workers   []*cell.Cell[worker]
	collector *cell.Cell[collector]
	sent      uint64
	completed uint64
}

// worker shares the input matrices read-only with every other worker.
type worker struct {
	master    *cell.Cell[master]
	collector *cell.Cell[collector]
	a, b      [][]uint64
	threshold uint64
}

type collector struct {
	result [][]uint64
}

// Benchmark runs the workload.
type Benchmark struct {
	cfg Config

	// written by the master's terminating operation
	sent      uint64
	completed uint64
	done      bool
	maxDepth  uint64
	leaves    uint64

	// written by the collector once the master terminates
	result [][]uint64
}

var _ workload.Benchmark = (*Benchmark)(nil)

// New creates a benchmark for cfg.
func New(cfg Config) *Benchmark {
	return &Benchmark{cfg: cfg}
}

// FromParams builds a benchmark from the "workers", "length" and "threshold"
// parameters.
func FromParams(p workload.Params) (workload.Benchmark, error) {
	cfg := Config{
		Workers:   p.Get("workers", DefaultWorkers),
		Length:    p.Get("length", DefaultLength),
		Threshold: p.Get("threshold", DefaultThreshold),
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

// Run creates the master, which builds the matrices, the collector and the
// worker pool and sends the root task.
func (b *Benchmark) Run(s *cell.Scheduler) error {
	if err := b.cfg.Validate(); err != nil {
		return err
	}

	n := b.cfg.Length
	m := cell.New(s, master{})
	cell.When(m, func(ms *master) {
		a := make([][]uint64, n)
		bm := make([][]uint64, n)
		for i := range n {
			a[i] = make([]uint64, n)
			bm[i] = make([]uint64, n)
			for j := range n {
				a[i][j] = i
				bm[i][j] = j
			}
		}

		result := make([][]uint64, n)
		for i := range result {
			result[i] = make([]uint64, n)
		}
		ms.collector = cell.New(s, collector{result: result})

		ms.workers = make([]*cell.Cell[worker], b.cfg.Workers)
		for k := range ms.workers {
			ms.workers[k] = cell.New(s, worker{
				master:    m,
				collector: ms.collector,
				a:         a,
				b:         bm,
				threshold: b.cfg.Threshold,
			})
		}

		b.sendWork(ms, Task{Length: n * n, Dimension: n})
	})
	return nil
}

// sendWork dispatches t to the worker owning its destination block. Runs
// inside an operation on the master.
func (b *Benchmark) sendWork(ms *master, t Task) {
	w := ms.workers[(t.SrC+t.ScC)%uint64(len(ms.workers))]
	ms.sent++
	b.work(w, t)
}

// submit hands a task back to the master for dispatch.
func (b *Benchmark) submit(m *cell.Cell[master], t Task) {
	cell.When(m, func(ms *master) {
		b.sendWork(ms, t)
	})
}

func (b *Benchmark) work(c *cell.Cell[worker], t Task) {
	cell.When(c, func(w *worker) {
		if t.Length > w.threshold && t.Dimension > 1 {
			for _, sub := range t.split() {
				b.submit(w.master, sub)
			}
		} else {
			b.collect(w.collector, multiply(w.a, w.b, t))
		}
		b.taskDone(w.master, t)
	})
}

// multiply computes the dense product of t's block.
func multiply(a, bm [][]uint64, t Task) []entry {
	dim := t.Dimension
	partial := make([]entry, 0, dim*dim)
	for di := range dim {
		row := a[t.SrA+di]
		for dj := range dim {
			var product uint64
			for k := range dim {
				product += row[t.ScA+k] * bm[t.SrB+k][t.ScB+dj]
			}
			partial = append(partial, entry{row: t.SrC + di, col: t.ScC + dj, value: product})
		}
	}
	return partial
}

func (b *Benchmark) collect(c *cell.Cell[collector], partial []entry) {
	cell.When(c, func(col *collector) {
		for _, e := range partial {
			col.result[e.row][e.col] += e.value
		}
	})
}

func (b *Benchmark) taskDone(m *cell.Cell[master], t Task) {
	cell.When(m, func(ms *master) {
		ms.completed++
		if t.Priority > b.maxDepth {
			b.maxDepth = t.Priority
		}
		if t.Length <= b.cfg.Threshold || t.Dimension <= 1 {
			b.leaves++
		}

		switch {
		case ms.completed > ms.sent:
			panic(fmt.Sprintf("recmatmul: %d tasks completed but only %d sent", ms.completed, ms.sent))
		case ms.completed < ms.sent:
			return
		}

		b.sent, b.completed, b.done = ms.sent, ms.completed, true
		cell.When(ms.collector, func(col *collector) {
			b.result = col.result
		})
		ms.workers = nil
		ms.collector = nil
	})
}

// Result returns the product matrix. Valid after quiescence.
func (b *Benchmark) Result() [][]uint64 {
	return b.result
}

// Verify reports whether the product matches the closed form
// result[i][j] = n*i*j of the generated inputs.
func (b *Benchmark) Verify() bool {
	n := b.cfg.Length
	if uint64(len(b.result)) != n {
		return false
	}
	for i := range n {
		for j := range n {
			if b.result[i][j] != n*i*j {
				return false
			}
		}
	}
	return true
}

// Outcome implements workload.Benchmark.
func (b *Benchmark) Outcome() workload.Outcome {
	return workload.Outcome{
		"workers":   b.cfg.Workers,
		"length":    b.cfg.Length,
		"threshold": b.cfg.Threshold,
		"sent":      b.sent,
		"completed": b.completed,
		"done":      b.done,
		"depth":     b.maxDepth,
		"leaves":    b.leaves,
		"verified":  b.done && b.Verify(),
	}
}
