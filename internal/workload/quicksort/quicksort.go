// Package quicksort implements the Quicksort fork-join workload. Large
// inputs are partitioned around their middle element, both sides are sorted
// asynchronously into their own cells, and a join holding both cells appends
// the pivot run and the right side onto the left one.
package quicksort

import (
	"fmt"
	"slices"

	"github.com/seantiz/savina/internal/cell"
	"github.com/seantiz/savina/internal/random"
	"github.com/seantiz/savina/internal/workload"
)

// Name is the report name of the workload.
const Name = "Quicksort"

// Defaults for a run.
const (
	DefaultDataset   = 1000000
	DefaultMax       = 1 << 16
	DefaultThreshold = 2048
	DefaultSeed      = 1024
)

// Config parameterises a run. Values are drawn from [0, Max).
type Config struct {
	Dataset   uint64 `json:"dataset" yaml:"dataset"`
	Max       uint64 `json:"max" yaml:"max"`
	Threshold uint64 `json:"threshold" yaml:"threshold"`
	Seed      uint64 `json:"seed" yaml:"seed"`
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.Max == 0 {
		return fmt.Errorf("%w: quicksort max must be positive", workload.ErrInvalidConfig)
	}
	return nil
}

// Partition splits input into the values below, equal to and above pivot,
// keeping their relative order.
func Partition(input []uint64, pivot uint64) (less, equal, greater []uint64) {
	for _, v := range input {
		switch {
		case v < pivot:
			less = append(less, v)
		case v > pivot:
			greater = append(greater, v)
		default:
			equal = append(equal, v)
		}
	}
	return less, equal, greater
}

// Sequential returns a sorted copy of input.
func Sequential(input []uint64) []uint64 {
	out := slices.Clone(input)
	slices.Sort(out)
	return out
}

// Sort sorts input on s and returns the cell that will hold the result once
// every operation it scheduled has run. Inputs shorter than threshold are
// sorted in a single operation.
func Sort(s *cell.Scheduler, input []uint64, threshold uint64) *cell.Cell[[]uint64] {
	size := uint64(len(input))
	if size < threshold || size == 0 {
		result := cell.New[[]uint64](s, nil)
		cell.When(result, func(r *[]uint64) {
			*r = Sequential(input)
		})
		return result
	}

	less, equal, greater := Partition(input, input[size/2])
	left := Sort(s, less, threshold)
	right := Sort(s, greater, threshold)
	cell.When2(left, right, func(l, r *[]uint64) {
		*l = append(*l, equal...)
		*l = append(*l, *r...)
	})
	return left
}

// Benchmark sorts a seeded random dataset.
type Benchmark struct {
	cfg   Config
	input []uint64

	// written by the final operation on the result cell
	output []uint64
	sorted bool
	done   bool
}

var _ workload.Benchmark = (*Benchmark)(nil)

// New creates a benchmark for cfg.
func New(cfg Config) *Benchmark {
	return &Benchmark{cfg: cfg}
}

// FromParams builds a benchmark from the "dataset", "max", "threshold" and
// "seed" parameters.
func FromParams(p workload.Params) (workload.Benchmark, error) {
	cfg := Config{
		Dataset:   p.Get("dataset", DefaultDataset),
		Max:       p.Get("max", DefaultMax),
		Threshold: p.Get("threshold", DefaultThreshold),
		Seed:      p.Get("seed", DefaultSeed),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return New(cfg), nil
}

// Name implements workload.Benchmark.
func (b *Benchmark) Name() string { return Name }

// Paradigm implements workload.Benchmark.
func (b *Benchmark) Paradigm() string { return workload.ParadigmBoC }

// Dataset generates the input of a run.
func Dataset(cfg Config) []uint64 {
	rng := random.New(cfg.Seed)
	data := make([]uint64, cfg.Dataset)
	for i := range data {
		data[i] = rng.NextLong() % cfg.Max
	}
	return data
}

// Run generates the dataset, starts the sort and schedules the check of its
// result.
func (b *Benchmark) Run(s *cell.Scheduler) error {
	if err := b.cfg.Validate(); err != nil {
		return err
	}
	b.input = Dataset(b.cfg)

	result := Sort(s, b.input, b.cfg.Threshold)
	cell.When(result, func(r *[]uint64) {
		b.output = *r
		b.sorted = slices.IsSorted(*r)
		b.done = true
	})
	return nil
}

// Result returns the sorted output. Valid after quiescence.
func (b *Benchmark) Result() []uint64 {
	return b.output
}

// Outcome implements workload.Benchmark.
func (b *Benchmark) Outcome() workload.Outcome {
	return workload.Outcome{
		"dataset":   b.cfg.Dataset,
		"threshold": b.cfg.Threshold,
		"size":      len(b.output),
		"sorted":    b.sorted,
		"done":      b.done,
	}
}
