// Package radixsort implements the Radix-Sort pipeline workload. A source
// feeds a chain of sorter stages, one per bit, each of which forwards values
// with its bit clear straight away and holds back the rest until it has seen
// the whole dataset. A validation stage at the end checks the order.
package radixsort

import (
	"fmt"

	"github.com/seantiz/savina/internal/cell"
	"github.com/seantiz/savina/internal/random"
	"github.com/seantiz/savina/internal/workload"
)

// Name is the report name of the workload.
const Name = "Radixsort"

// Defaults for a run.
const (
	DefaultDataset = 100000
	DefaultMax     = 1 << 16
	DefaultSeed    = 74755
)

// NoInversion marks a validation that saw its input in non-decreasing order.
const NoInversion = -1

// Config parameterises a run. Values are drawn from [0, Max).
type Config struct {
	Dataset uint64 `json:"dataset" yaml:"dataset"`
	Max     uint64 `json:"max" yaml:"max"`
	Seed    uint64 `json:"seed" yaml:"seed"`

	// Record keeps every value validation receives, for inspection.
	Record bool `json:"-" yaml:"-"`
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.Max == 0 {
		return fmt.Errorf("%w: radixsort max must be positive", workload.ErrInvalidConfig)
	}
	return nil
}

// stage is the next hop of a sorter: either another sorter or the validation
// sink. The set of implementations is closed.
type stage interface {
	isStage()
}

type sorterStage struct{ c *cell.Cell[sorter] }

type validationStage struct{ c *cell.Cell[validation] }

func (sorterStage) isStage()     {}
func (validationStage) isStage() {}

type sorter struct {
	next     stage
	size     uint64
	radix    uint64
	data     []uint64
	received uint64
	current  uint64
}

type validation struct {
	size     uint64
	sum      uint64
	received uint64
	previous uint64

	errValue int64
	errIndex int64

	record []uint64
}

// Result is what the validation stage observed.
type Result struct {
	Received uint64
	Sum      uint64
	// InversionIndex is the position of the first value smaller than its
	// predecessor, or NoInversion.
	InversionIndex int64
	InversionValue int64
	Done           bool
	Output         []uint64
}

// Benchmark runs the pipeline.
type Benchmark struct {
	cfg    Config
	stages int

	// written by the validation stage's final operation
	result Result
}

var _ workload.Benchmark = (*Benchmark)(nil)

// New creates a benchmark for cfg.
func New(cfg Config) *Benchmark {
	return &Benchmark{cfg: cfg}
}

// FromParams builds a benchmark from the "dataset", "max" and "seed"
// parameters.
func FromParams(p workload.Params) (workload.Benchmark, error) {
	cfg := Config{
		Dataset: p.Get("dataset", DefaultDataset),
		Max:     p.Get("max", DefaultMax),
		Seed:    p.Get("seed", DefaultSeed),
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

// Run builds the pipeline and feeds it the dataset.
func (b *Benchmark) Run(s *cell.Scheduler) error {
	if err := b.cfg.Validate(); err != nil {
		return err
	}

	v := validation{
		size:     b.cfg.Dataset,
		errValue: NoInversion,
		errIndex: NoInversion,
	}
	if b.cfg.Record {
		v.record = make([]uint64, 0, b.cfg.Dataset)
	}
	if b.cfg.Dataset == 0 {
		b.result = Result{InversionIndex: NoInversion, InversionValue: NoInversion, Done: true}
	}

	// Stages are created from the highest radix down, each one in front of
	// the previous, so values enter at the lowest bit and leave through the
	// highest.
	var next stage = validationStage{cell.New(s, v)}
	for radix := b.cfg.Max / 2; radix > 0; radix /= 2 {
		next = sorterStage{cell.New(s, sorter{
			next:  next,
			size:  b.cfg.Dataset,
			radix: radix,
			data:  make([]uint64, b.cfg.Dataset),
		})}
		b.stages++
	}

	r := random.New(b.cfg.Seed)
	for range b.cfg.Dataset {
		b.send(next, r.NextLong()%b.cfg.Max)
	}
	return nil
}

// send dispatches n to whichever kind of stage next is.
func (b *Benchmark) send(next stage, n uint64) {
	switch st := next.(type) {
	case sorterStage:
		b.sort(st.c, n)
	case validationStage:
		b.validate(st.c, n)
	default:
		panic(fmt.Sprintf("radixsort: unknown stage %T", next))
	}
}

func (b *Benchmark) sort(c *cell.Cell[sorter], n uint64) {
	cell.When(c, func(st *sorter) {
		st.received++

		if n&st.radix == 0 {
			b.send(st.next, n)
		} else {
			st.data[st.current] = n
			st.current++
		}

		if st.received == st.size {
			for _, held := range st.data[:st.current] {
				b.send(st.next, held)
			}
		}
	})
}

func (b *Benchmark) validate(c *cell.Cell[validation], n uint64) {
	cell.When(c, func(v *validation) {
		v.received++
		if n < v.previous && v.errIndex < 0 {
			v.errValue = int64(n)
			v.errIndex = int64(v.received - 1)
		}
		v.previous = n
		v.sum += n
		if v.record != nil {
			v.record = append(v.record, n)
		}

		if v.received == v.size {
			b.result = Result{
				Received:       v.received,
				Sum:            v.sum,
				InversionIndex: v.errIndex,
				InversionValue: v.errValue,
				Done:           true,
				Output:         v.record,
			}
		}
	})
}

// Stages returns the number of sorter stages in the pipeline.
func (b *Benchmark) Stages() int {
	return b.stages
}

// Result returns what validation observed. Valid after quiescence.
func (b *Benchmark) Result() Result {
	return b.result
}

// Outcome implements workload.Benchmark.
func (b *Benchmark) Outcome() workload.Outcome {
	return workload.Outcome{
		"dataset":         b.cfg.Dataset,
		"max":             b.cfg.Max,
		"seed":            b.cfg.Seed,
		"stages":          b.stages,
		"received":        b.result.Received,
		"sum":             b.result.Sum,
		"inversion_index": b.result.InversionIndex,
		"inversion_value": b.result.InversionValue,
		"sorted":          b.result.Done && b.result.InversionIndex == NoInversion,
	}
}
