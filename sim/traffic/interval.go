package traffic

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// IntervalSampler draws positive time intervals (inter-arrival gaps or
// holding times).
type IntervalSampler interface {
	Sample() float64
}

// ExponentialSampler draws exponentially distributed intervals (CV=1).
type ExponentialSampler struct {
	dist distuv.Exponential
}

func (s *ExponentialSampler) Sample() float64 {
	return s.dist.Rand()
}

// ConstantSampler always returns the mean.
type ConstantSampler struct {
	value float64
}

func (s *ConstantSampler) Sample() float64 {
	return s.value
}

// NewIntervalSampler creates a sampler with the given mean for a process name.
// "poisson" and "exponential" both mean exponentially distributed intervals;
// the empty name selects that default.
func NewIntervalSampler(process string, mean float64, src rand.Source) (IntervalSampler, error) {
	if mean <= 0 {
		return nil, fmt.Errorf("interval mean must be positive, got %f", mean)
	}
	switch process {
	case "", "poisson", "exponential":
		return &ExponentialSampler{dist: distuv.Exponential{Rate: 1 / mean, Src: src}}, nil
	case "constant":
		return &ConstantSampler{value: mean}, nil
	default:
		return nil, fmt.Errorf("unknown interval process %q", process)
	}
}
