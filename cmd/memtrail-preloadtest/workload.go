// Command memtrail-preloadtest drives internal/bookkeeping.Tracer
// directly through YAML-described allocation workloads, exercising
// every code path the cgo interposition shims call without needing a
// -buildmode=c-shared build to run go test. It doubles as the
// project's smoke-test program, the pure-Go analogue of the original
// tool's benchmark/sample C programs.
package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Step is one instruction in a workload fixture. Op selects which
// Tracer method to call; Ref names the resulting pointer and Target
// (for free/realloc/reallocarray) the input pointer, so later steps and
// assertions can refer to them by name instead of by raw address.
type Step struct {
	Op        string `yaml:"op"`
	Ref       string `yaml:"ref,omitempty"`
	Target    string `yaml:"target,omitempty"`
	Size      uint64 `yaml:"size,omitempty"`
	Nmemb     uint64 `yaml:"nmemb,omitempty"`
	Alignment uint64 `yaml:"alignment,omitempty"`
}

// Workload is a named sequence of steps plus the expectations the
// integration test checks after running them.
type Workload struct {
	Name   string `yaml:"name"`
	Steps  []Step `yaml:"steps"`
	Expect Expect `yaml:"expect"`
}

// Expect names the post-run assertions a scenario makes against the
// tracer's counters, matching the "maximum"/"leaked" language spec.md
// itself uses for S1-S6.
type Expect struct {
	MaxSize    int64 `yaml:"maxSize"`
	LeakedSize int64 `yaml:"leakedSize"`
}

// LoadWorkload reads and parses a workload fixture from path.
func LoadWorkload(path string) (*Workload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("memtrail-preloadtest: read workload %s: %w", path, err)
	}
	var wl Workload
	if err := yaml.Unmarshal(data, &wl); err != nil {
		return nil, fmt.Errorf("memtrail-preloadtest: parse workload %s: %w", path, err)
	}
	return &wl, nil
}
