package traffic

import (
	"fmt"
	"math/rand/v2"

	"github.com/rsa-sim/rsa-sim/sim"
)

// RNG stream names inside the traffic subsystem. Each draw type has its own
// stream so that, for example, changing the width distribution never shifts
// arrival times.
const (
	streamArrival = sim.SubsystemTraffic + "/arrival"
	streamHolding = sim.SubsystemTraffic + "/holding"
	streamPair    = sim.SubsystemTraffic + "/pair"
	streamWidth   = sim.SubsystemTraffic + "/width"
)

// Generator is a lazy, infinite, reseedable request source.
// Two Generators with the same Spec and seed produce bit-identical sequences.
//
// Thread-safety: NOT thread-safe. Each replica owns its Generator.
type Generator struct {
	spec     Spec
	arrivals IntervalSampler
	holdings IntervalSampler
	widths   WidthSampler
	pairs    *rand.Rand

	clock  float64
	nextID int64
}

var _ sim.RequestSource = (*Generator)(nil)

// NewGenerator validates spec and returns a Generator seeded with seed.
func NewGenerator(spec Spec, seed int64) (*Generator, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("traffic spec: %w", err)
	}
	g := &Generator{spec: spec}
	if err := g.build(seed); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Generator) build(seed int64) error {
	rng := sim.NewPartitionedRNG(seed)
	arrivals, err := NewIntervalSampler(g.spec.Arrival.Process, 1/g.spec.ArrivalRate, rng.ForSubsystem(streamArrival))
	if err != nil {
		return fmt.Errorf("arrival: %w", err)
	}
	holdings, err := NewIntervalSampler(g.spec.Holding.Process, g.spec.ServiceTime, rng.ForSubsystem(streamHolding))
	if err != nil {
		return fmt.Errorf("holding: %w", err)
	}
	widths, err := NewWidthSampler(g.spec.Width, rng.ForSubsystem(streamWidth))
	if err != nil {
		return err
	}
	g.arrivals = arrivals
	g.holdings = holdings
	g.widths = widths
	g.pairs = rng.ForSubsystem(streamPair)
	g.clock = 0
	g.nextID = 0
	return nil
}

// Reseed restarts the sequence: clock 0, next ID 0, streams re-derived from seed.
func (g *Generator) Reseed(seed int64) {
	if err := g.build(seed); err != nil {
		// NewGenerator validated g.spec, so rebuilding cannot fail.
		panic(fmt.Sprintf("traffic: reseed: %v", err))
	}
}

// Next returns the next request. Arrival times are non-decreasing and IDs
// strictly increasing from 0.
func (g *Generator) Next() sim.Request {
	g.clock += g.arrivals.Sample()
	n := g.spec.Nodes
	src := g.pairs.IntN(n)
	dst := g.pairs.IntN(n - 1)
	if dst >= src {
		dst++
	}
	req := sim.Request{
		ID:          g.nextID,
		ArrivalTime: g.clock,
		HoldingTime: g.holdings.Sample(),
		Src:         src,
		Dst:         dst,
		SlotWidth:   g.widths.Sample(),
	}
	g.nextID++
	return req
}

// Take returns the next n requests.
func (g *Generator) Take(n int) []sim.Request {
	out := make([]sim.Request, n)
	for i := range out {
		out[i] = g.Next()
	}
	return out
}

// Spec returns the generator's traffic spec.
func (g *Generator) Spec() Spec { return g.spec }
