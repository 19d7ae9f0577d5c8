package workload

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/seantiz/savina/internal/cell"
)

// Paradigm constants, matching the two families of the Savina suite.
const (
	ParadigmActor = "actor"
	ParadigmBoC   = "boc"
)

// ErrInvalidConfig is wrapped by every configuration error a benchmark
// reports before scheduling anything.
var ErrInvalidConfig = errors.New("invalid configuration")

// Benchmark is implemented by every workload. A Benchmark is single use: Run
// builds the workload's cells on the given scheduler and schedules its initial
// operations, then returns without waiting. Outcome is meaningful once the
// scheduler has reached quiescence.
type Benchmark interface {
	// Name is the human readable name used in reports.
	Name() string

	// Paradigm reports whether the workload is written in the actor style
	// (single-cell operations only) or uses multi-cell behaviours.
	Paradigm() string

	// Run validates the configuration and starts the workload.
	Run(s *cell.Scheduler) error

	// Outcome reports what the workload observed at completion.
	Outcome() Outcome
}

// Outcome is the observable completion data of a run, keyed by field name.
type Outcome map[string]any

// Params carries numeric benchmark parameters by name.
type Params map[string]uint64

// Get returns the value for key, or def when the key is absent.
func (p Params) Get(key string, def uint64) uint64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// WithDefaults returns a copy of p with every missing key taken from defaults.
func (p Params) WithDefaults(defaults Params) Params {
	out := maps.Clone(defaults)
	if out == nil {
		out = Params{}
	}
	maps.Copy(out, p)
	return out
}

// CheckKeys reports keys of p that are not in allowed.
func (p Params) CheckKeys(allowed Params) error {
	var unknown []string
	for k := range p {
		if _, ok := allowed[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	slices.Sort(unknown)
	return fmt.Errorf("%w: unknown parameters %v", ErrInvalidConfig, unknown)
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	return slices.Sorted(maps.Keys(p))
}
