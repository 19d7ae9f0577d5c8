package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Suite is a list of benchmarks measured one after another with shared
// harness settings, read from a YAML file:
//
//	cores: 4
//	repetitions: 10
//	benchmarks:
//	  - name: fib
//	    params: {index: 25}
//	  - name: Thread Ring
//	    repetitions: 3
type Suite struct {
	Cores       int          `yaml:"cores"`
	Repetitions int          `yaml:"repetitions"`
	Scale       bool         `yaml:"scale"`
	TimeoutS    int          `yaml:"timeout_s"`
	Benchmarks  []SuiteEntry `yaml:"benchmarks"`
}

// SuiteEntry is one benchmark of a suite. Zero Cores or Repetitions inherit
// the suite's values.
type SuiteEntry struct {
	Name        string            `yaml:"name"`
	Params      map[string]uint64 `yaml:"params"`
	Cores       int               `yaml:"cores"`
	Repetitions int               `yaml:"repetitions"`
}

// ErrEmptySuite is returned for a suite that lists no benchmarks.
var ErrEmptySuite = errors.New("suite lists no benchmarks")

// ParseSuite decodes a suite. Unknown fields are errors.
func ParseSuite(data []byte) (*Suite, error) {
	var s Suite
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode suite: %w", err)
	}
	return &s, nil
}

// LoadSuite reads and decodes the suite file at path.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite: %w", err)
	}
	return ParseSuite(data)
}

// Validate reports every problem of the suite at once. check, if set, is
// asked whether each entry names a benchmark that accepts its parameters.
func (s *Suite) Validate(check func(name string, params map[string]uint64) error) error {
	var merr error

	if len(s.Benchmarks) == 0 {
		merr = multierror.Append(merr, ErrEmptySuite)
	}
	if s.Cores < 0 {
		merr = multierror.Append(merr, fmt.Errorf("cores must not be negative, got %d", s.Cores))
	}
	if s.Repetitions < 0 {
		merr = multierror.Append(merr, fmt.Errorf("repetitions must not be negative, got %d", s.Repetitions))
	}
	if s.TimeoutS < 0 {
		merr = multierror.Append(merr, fmt.Errorf("timeout_s must not be negative, got %d", s.TimeoutS))
	}

	for i, e := range s.Benchmarks {
		if e.Name == "" {
			merr = multierror.Append(merr, fmt.Errorf("benchmarks[%d]: name is required", i))
			continue
		}
		if e.Cores < 0 || e.Repetitions < 0 {
			merr = multierror.Append(merr, fmt.Errorf("benchmarks[%d] %s: cores and repetitions must not be negative", i, e.Name))
		}
		if check != nil {
			if err := check(e.Name, e.Params); err != nil {
				merr = multierror.Append(merr, fmt.Errorf("benchmarks[%d] %s: %w", i, e.Name, err))
			}
		}
	}

	return merr
}

// Resolved returns the entry with the suite's settings filled in.
func (s *Suite) Resolved(e SuiteEntry) SuiteEntry {
	if e.Cores == 0 {
		e.Cores = s.Cores
	}
	if e.Repetitions == 0 {
		e.Repetitions = s.Repetitions
	}
	return e
}
