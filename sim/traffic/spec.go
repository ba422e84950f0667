// Package traffic generates the connection request stream fed to a
// simulation environment: arrival times, holding times, node pairs and
// slot-width demands, each drawn from its own deterministic RNG stream.
package traffic

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Spec is the traffic configuration of one experiment.
// Loaded from YAML via LoadSpec(path) or embedded in the experiment config.
type Spec struct {
	Nodes       int         `yaml:"nodes,omitempty"` // filled from the topology when 0
	ArrivalRate float64     `yaml:"arrival_rate"`    // requests per unit time
	ServiceTime float64     `yaml:"service_time"`    // mean holding time
	Arrival     ProcessSpec `yaml:"arrival"`
	Holding     ProcessSpec `yaml:"holding"`
	Width       WidthSpec   `yaml:"width"`
}

// ProcessSpec selects the distribution of a time interval.
type ProcessSpec struct {
	Process string `yaml:"process"` // "poisson"/"exponential" (default) or "constant"
}

// WidthSpec parameterizes the slot-width distribution.
type WidthSpec struct {
	Type    string    `yaml:"type"`              // "fixed" (default), "uniform", "categorical"
	Value   int       `yaml:"value,omitempty"`   // fixed
	Min     int       `yaml:"min,omitempty"`     // uniform
	Max     int       `yaml:"max,omitempty"`     // uniform
	Values  []int     `yaml:"values,omitempty"`  // categorical
	Weights []float64 `yaml:"weights,omitempty"` // categorical; uniform if empty
}

// Valid value registries.
var (
	// validIntervalProcesses covers both arrival gaps and holding times;
	// NewIntervalSampler accepts exactly these names.
	validIntervalProcesses = map[string]bool{
		"": true, "poisson": true, "exponential": true, "constant": true,
	}
	validWidthTypes = map[string]bool{
		"": true, "fixed": true, "uniform": true, "categorical": true,
	}
)

// DefaultSpec returns the traffic defaults of the reference experiments:
// 12 requests per unit time, mean holding time 10, width-1 requests.
func DefaultSpec() Spec {
	return Spec{
		ArrivalRate: 12,
		ServiceTime: 10,
		Arrival:     ProcessSpec{Process: "poisson"},
		Holding:     ProcessSpec{Process: "exponential"},
		Width:       WidthSpec{Type: "fixed", Value: 1},
	}
}

// LoadSpec reads and parses a YAML traffic specification file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading traffic spec: %w", err)
	}
	spec := DefaultSpec()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing traffic spec: %w", err)
	}
	return &spec, nil
}

// Validate checks that all fields are valid.
func (s *Spec) Validate() error {
	if s.Nodes < 2 {
		return fmt.Errorf("nodes must be >= 2, got %d", s.Nodes)
	}
	if err := validateFinitePositive("arrival_rate", s.ArrivalRate); err != nil {
		return err
	}
	if err := validateFinitePositive("service_time", s.ServiceTime); err != nil {
		return err
	}
	if !validIntervalProcesses[s.Arrival.Process] {
		return fmt.Errorf("unknown arrival process %q; valid: poisson, exponential, constant", s.Arrival.Process)
	}
	if !validIntervalProcesses[s.Holding.Process] {
		return fmt.Errorf("unknown holding process %q; valid: poisson, exponential, constant", s.Holding.Process)
	}
	return s.Width.Validate()
}

// Validate checks the width distribution parameters.
func (w *WidthSpec) Validate() error {
	if !validWidthTypes[w.Type] {
		return fmt.Errorf("width: unknown type %q; valid: fixed, uniform, categorical", w.Type)
	}
	switch w.Type {
	case "", "fixed":
		if w.Value < 1 {
			return fmt.Errorf("width.value must be >= 1, got %d", w.Value)
		}
	case "uniform":
		if w.Min < 1 || w.Max < w.Min {
			return fmt.Errorf("width: uniform needs 1 <= min <= max, got [%d, %d]", w.Min, w.Max)
		}
	case "categorical":
		if len(w.Values) == 0 {
			return fmt.Errorf("width: categorical needs at least one value")
		}
		for i, v := range w.Values {
			if v < 1 {
				return fmt.Errorf("width.values[%d] must be >= 1, got %d", i, v)
			}
		}
		if len(w.Weights) > 0 {
			if len(w.Weights) != len(w.Values) {
				return fmt.Errorf("width: %d weights for %d values", len(w.Weights), len(w.Values))
			}
			sum := 0.0
			for i, p := range w.Weights {
				if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
					return fmt.Errorf("width.weights[%d] must be a finite non-negative number, got %f", i, p)
				}
				sum += p
			}
			if sum <= 0 {
				return fmt.Errorf("width.weights must not all be zero")
			}
		}
	}
	return nil
}

// MaxWidth returns the largest slot width the distribution can produce.
func (w *WidthSpec) MaxWidth() int {
	switch w.Type {
	case "uniform":
		return w.Max
	case "categorical":
		m := 0
		for _, v := range w.Values {
			m = max(m, v)
		}
		return m
	default:
		return w.Value
	}
}

func validateFinitePositive(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, val)
	}
	if val <= 0 {
		return fmt.Errorf("%s must be positive, got %f", name, val)
	}
	return nil
}
