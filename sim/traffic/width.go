package traffic

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// WidthSampler draws the number of contiguous slots a request demands.
// Always returns a value >= 1.
type WidthSampler interface {
	Sample() int
}

// FixedWidth demands the same width for every request.
type FixedWidth struct {
	value int
}

func (w *FixedWidth) Sample() int { return w.value }

// UniformWidth draws uniformly from [min, max].
type UniformWidth struct {
	min, max int
	rng      *rand.Rand
}

func (w *UniformWidth) Sample() int {
	return w.min + w.rng.IntN(w.max-w.min+1)
}

// CategoricalWidth draws one of a fixed set of widths with given weights.
type CategoricalWidth struct {
	values []int
	dist   distuv.Categorical
}

func (w *CategoricalWidth) Sample() int {
	return w.values[int(w.dist.Rand())]
}

// NewWidthSampler creates a WidthSampler from a validated spec.
func NewWidthSampler(spec WidthSpec, rng *rand.Rand) (WidthSampler, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	switch spec.Type {
	case "", "fixed":
		return &FixedWidth{value: spec.Value}, nil
	case "uniform":
		return &UniformWidth{min: spec.Min, max: spec.Max, rng: rng}, nil
	case "categorical":
		weights := spec.Weights
		if len(weights) == 0 {
			weights = make([]float64, len(spec.Values))
			for i := range weights {
				weights[i] = 1
			}
		}
		return &CategoricalWidth{
			values: append([]int(nil), spec.Values...),
			dist:   distuv.NewCategorical(weights, rng),
		}, nil
	default:
		return nil, fmt.Errorf("unknown width type %q", spec.Type)
	}
}
