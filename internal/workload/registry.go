package workload

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/iancoleman/strcase"
)

// Factory builds a fresh benchmark instance from fully defaulted parameters.
type Factory func(p Params) (Benchmark, error)

// Descriptor describes a registered benchmark.
type Descriptor struct {
	Key         string   `json:"key"`
	Name        string   `json:"name"`
	Paradigm    string   `json:"paradigm"`
	Description string   `json:"description"`
	Aliases     []string `json:"aliases,omitempty"`
	Defaults    Params   `json:"defaults"`
}

type entry struct {
	desc    Descriptor
	factory Factory
}

// Registry holds registered benchmarks and resolves names to factories.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	lookup  map[string]string
}

// NewRegistry creates an empty benchmark registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		lookup:  make(map[string]string),
	}
}

// Normalize folds a benchmark name into its lookup form, so that
// "Thread Ring", "thread_ring", "ThreadRing" and "threadring" all match.
func Normalize(name string) string {
	return strings.ReplaceAll(strcase.ToKebab(strings.TrimSpace(name)), "-", "")
}

// Register adds a benchmark under d.Key and its aliases. Registering the same
// key again replaces the earlier entry.
func (r *Registry) Register(d Descriptor, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[d.Key] = &entry{desc: d, factory: f}
	r.lookup[Normalize(d.Key)] = d.Key
	r.lookup[Normalize(d.Name)] = d.Key
	for _, a := range d.Aliases {
		r.lookup[Normalize(a)] = d.Key
	}
}

// Resolve returns the descriptor and factory registered for name.
func (r *Registry) Resolve(name string) (Descriptor, Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.lookup[Normalize(name)]
	if !ok {
		return Descriptor{}, nil, fmt.Errorf("benchmark %q is not registered", name)
	}
	e := r.entries[key]
	return e.desc, e.factory, nil
}

// New resolves name, rejects parameters the benchmark does not know, fills in
// defaults, and builds a fresh instance.
func (r *Registry) New(name string, p Params) (Benchmark, error) {
	d, f, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	if err := p.CheckKeys(d.Defaults); err != nil {
		return nil, fmt.Errorf("%s: %w", d.Key, err)
	}
	b, err := f(p.WithDefaults(d.Defaults))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Key, err)
	}
	return b, nil
}

// List returns all registered benchmarks sorted by key.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.desc)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key < out[j].Key
	})
	return out
}
