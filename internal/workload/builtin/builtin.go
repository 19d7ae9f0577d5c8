// Package builtin registers the six workloads of the suite with their
// reference parameters.
package builtin

import (
	"github.com/seantiz/savina/internal/workload"
	"github.com/seantiz/savina/internal/workload/concdict"
	"github.com/seantiz/savina/internal/workload/fib"
	"github.com/seantiz/savina/internal/workload/quicksort"
	"github.com/seantiz/savina/internal/workload/radixsort"
	"github.com/seantiz/savina/internal/workload/recmatmul"
	"github.com/seantiz/savina/internal/workload/threadring"
)

// Register adds every built-in workload to reg.
func Register(reg *workload.Registry) {
	reg.Register(workload.Descriptor{
		Key:         "concdict",
		Name:        concdict.Name,
		Paradigm:    workload.ParadigmActor,
		Description: "Workers issue a read/write mix against one shared dictionary cell.",
		Aliases:     []string{"dictionary", "concurrent-dictionary"},
		Defaults: workload.Params{
			"workers":    concdict.DefaultWorkers,
			"messages":   concdict.DefaultMessages,
			"percentage": concdict.DefaultPercentage,
		},
	}, concdict.FromParams)

	reg.Register(workload.Descriptor{
		Key:         "fib",
		Name:        fib.Name,
		Paradigm:    workload.ParadigmActor,
		Description: "Fork-join Fibonacci with one cell per call.",
		Aliases:     []string{"fibonacci"},
		Defaults:    workload.Params{"index": fib.DefaultIndex},
	}, fib.FromParams)

	reg.Register(workload.Descriptor{
		Key:         "threadring",
		Name:        threadring.Name,
		Paradigm:    workload.ParadigmActor,
		Description: "A token passed around a ring of actors a fixed number of times.",
		Aliases:     []string{"ring"},
		Defaults: workload.Params{
			"actors": threadring.DefaultActors,
			"pass":   threadring.DefaultPass,
		},
	}, threadring.FromParams)

	reg.Register(workload.Descriptor{
		Key:         "radixsort",
		Name:        radixsort.Name,
		Paradigm:    workload.ParadigmActor,
		Description: "A pipeline of one-bit sorter stages ending in an order check.",
		Aliases:     []string{"radix"},
		Defaults: workload.Params{
			"dataset": radixsort.DefaultDataset,
			"max":     radixsort.DefaultMax,
			"seed":    radixsort.DefaultSeed,
		},
	}, radixsort.FromParams)

	reg.Register(workload.Descriptor{
		Key:         "recmatmul",
		Name:        recmatmul.Name,
		Paradigm:    workload.ParadigmActor,
		Description: "Recursive block matrix multiplication on a worker pool.",
		Aliases:     []string{"matmul", "recursive-matrix-multiply"},
		Defaults: workload.Params{
			"workers":   recmatmul.DefaultWorkers,
			"length":    recmatmul.DefaultLength,
			"threshold": recmatmul.DefaultThreshold,
		},
	}, recmatmul.FromParams)

	reg.Register(workload.Descriptor{
		Key:         "quicksort",
		Name:        quicksort.Name,
		Paradigm:    workload.ParadigmBoC,
		Description: "Fork-join quicksort joining both partitions in a two-cell operation.",
		Aliases:     []string{"qsort"},
		Defaults: workload.Params{
			"dataset":   quicksort.DefaultDataset,
			"max":       quicksort.DefaultMax,
			"threshold": quicksort.DefaultThreshold,
			"seed":      quicksort.DefaultSeed,
		},
	}, quicksort.FromParams)
}

// NewRegistry returns a registry holding every built-in workload.
func NewRegistry() *workload.Registry {
	reg := workload.NewRegistry()
	Register(reg)
	return reg
}
