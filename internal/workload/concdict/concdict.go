// Package concdict implements the Concurrent Dictionary workload: W workers
// hammer one shared dictionary cell with a configurable mix of reads and
// writes, and a master counts them out.
package concdict

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/seantiz/savina/internal/cell"
	"github.com/seantiz/savina/internal/random"
	"github.com/seantiz/savina/internal/workload"
)

// Name is the report name of the workload.
const Name = "Concurrent Dictionary"

// Defaults from the Savina suite.
const (
	DefaultWorkers    = 20
	DefaultMessages   = 10000
	DefaultPercentage = 10
)

// keyBound folds drawn values into the key space.
const keyBound = math.MaxInt64 / 4096

// Config parameterises a run. Percentage is the share of operations, out of
// 100, that write.
type Config struct {
	Workers    uint64 `json:"workers" yaml:"workers"`
	Messages   uint64 `json:"messages" yaml:"messages"`
	Percentage uint64 `json:"percentage" yaml:"percentage"`
}

type master struct {
	workers uint64
}

type dictionary struct {
	entries map[uint64]uint64
}

type worker struct {
	master     *cell.Cell[master]
	dictionary *cell.Cell[dictionary]
	random     *random.SimpleRand
	messages   uint64
	percentage uint64
}

// Benchmark runs the dictionary workload.
type Benchmark struct {
	cfg Config

	dictionary *cell.Cell[dictionary]

	writes atomic.Uint64
	reads  atomic.Uint64
	hits   atomic.Uint64

	// written by the operation that retires the last worker
	finished uint64
	done     bool
	size     int
}

var _ workload.Benchmark = (*Benchmark)(nil)

// New creates a benchmark for cfg.
func New(cfg Config) *Benchmark {
	return &Benchmark{cfg: cfg}
}

// FromParams builds a benchmark from the "workers", "messages" and
// "percentage" parameters.
func FromParams(p workload.Params) (workload.Benchmark, error) {
	return New(Config{
		Workers:    p.Get("workers", DefaultWorkers),
		Messages:   p.Get("messages", DefaultMessages),
		Percentage: p.Get("percentage", DefaultPercentage),
	}), nil
}

// Name implements workload.Benchmark.
func (b *Benchmark) Name() string { return Name }

// Paradigm implements workload.Benchmark.
func (b *Benchmark) Paradigm() string { return workload.ParadigmActor }

// Run creates the master, which builds the dictionary and starts every worker.
func (b *Benchmark) Run(s *cell.Scheduler) error {
	if b.cfg.Workers == 0 {
		b.done = true
		return nil
	}
	m := cell.New(s, master{workers: b.cfg.Workers})

	cell.When(m, func(*master) {
		dict := cell.New(s, dictionary{entries: make(map[uint64]uint64)})
		b.dictionary = dict
		for i := range b.cfg.Workers {
			w := cell.New(s, worker{
				master:     m,
				dictionary: dict,
				random:     random.New(i + b.cfg.Messages + b.cfg.Percentage),
				messages:   b.cfg.Messages,
				percentage: b.cfg.Percentage,
			})
			b.work(w, 0)
		}
	})
	return nil
}

// work runs one worker step. value is the result of the previous dictionary
// operation and does not influence control flow.
func (b *Benchmark) work(c *cell.Cell[worker], _ uint64) {
	cell.When(c, func(w *worker) {
		if w.messages == 0 {
			b.retire(w.master, w.dictionary)
			return
		}
		w.messages--

		v := w.random.NextInt(100) % keyBound
		if v < w.percentage {
			b.write(w.dictionary, c, v, v)
		} else {
			b.read(w.dictionary, c, v)
		}
	})
}

func (b *Benchmark) write(d *cell.Cell[dictionary], w *cell.Cell[worker], key, value uint64) {
	b.writes.Add(1)
	cell.When(d, func(dict *dictionary) {
		dict.entries[key] = value
		b.work(w, value)
	})
}

func (b *Benchmark) read(d *cell.Cell[dictionary], w *cell.Cell[worker], key uint64) {
	b.reads.Add(1)
	cell.When(d, func(dict *dictionary) {
		value, ok := dict.entries[key]
		if ok {
			b.hits.Add(1)
		}
		b.work(w, value)
	})
}

// retire tells the master a worker has finished. The last one to report
// records the dictionary size.
func (b *Benchmark) retire(m *cell.Cell[master], d *cell.Cell[dictionary]) {
	cell.When(m, func(ms *master) {
		if ms.workers == 0 {
			panic("concdict: master retired more workers than it started")
		}
		ms.workers--
		b.finished++
		if ms.workers > 0 {
			return
		}
		b.done = true
		cell.When(d, func(dict *dictionary) {
			b.size = len(dict.entries)
		})
	})
}

// Outcome implements workload.Benchmark.
func (b *Benchmark) Outcome() workload.Outcome {
	return workload.Outcome{
		"workers":    b.cfg.Workers,
		"messages":   b.cfg.Messages,
		"percentage": b.cfg.Percentage,
		"operations": b.writes.Load() + b.reads.Load(),
		"writes":     b.writes.Load(),
		"reads":      b.reads.Load(),
		"hits":       b.hits.Load(),
		"finished":   b.finished,
		"done":       b.done,
		"size":       b.size,
	}
}

// String summarises the run for logs.
func (b *Benchmark) String() string {
	return fmt.Sprintf("%s(workers=%d, messages=%d, percentage=%d)",
		Name, b.cfg.Workers, b.cfg.Messages, b.cfg.Percentage)
}
