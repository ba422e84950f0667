package policy

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/rsa-sim/rsa-sim/sim"
	"github.com/rsa-sim/rsa-sim/sim/topology"
)

// ErrNotPrepared is returned by Decide on a KSP policy whose Prepare was never called.
var ErrNotPrepared = errors.New("policy not prepared with a topology")

// Fit selects the first slot among the feasible starting slots of one path.
type Fit int

const (
	FirstFit  Fit = iota // lowest feasible start
	LastFit              // highest feasible start
	RandomFit            // uniformly random feasible start
)

func (f Fit) String() string {
	switch f {
	case FirstFit:
		return "first-fit"
	case LastFit:
		return "last-fit"
	case RandomFit:
		return "random-fit"
	default:
		return fmt.Sprintf("fit(%d)", int(f))
	}
}

// KSP tries the k shortest candidate paths in order and admits on the first
// one with a contiguous free range of the requested width, placing it by fit.
// Rejects when no candidate path has room.
type KSP struct {
	k    int
	fit  Fit
	rng  *rand.Rand // RandomFit only
	topo *topology.Topology
}

// NewKSP creates a k-shortest-path policy. rng is required for RandomFit.
func NewKSP(k int, fit Fit, rng *rand.Rand) *KSP {
	return &KSP{k: k, fit: fit, rng: rng}
}

// Prepare binds the policy to the topology whose candidate paths it reads.
func (p *KSP) Prepare(topo *topology.Topology) error {
	if topo == nil {
		return fmt.Errorf("ksp: nil topology")
	}
	if p.fit == RandomFit && p.rng == nil {
		return fmt.Errorf("ksp: random-fit needs an RNG")
	}
	if topo.K() < p.k {
		return fmt.Errorf("ksp: topology has %d candidate paths per pair, policy wants %d", topo.K(), p.k)
	}
	p.topo = topo
	return nil
}

// Decide implements sim.Policy.
func (p *KSP) Decide(obs sim.Observation) (sim.Action, error) {
	if p.topo == nil {
		return sim.Action{}, ErrNotPrepared
	}
	req := obs.Request
	if req == nil {
		return sim.Action{}, fmt.Errorf("ksp: observation has no pending request")
	}
	paths := p.topo.CandidatePaths(req.Src, req.Dst)
	if len(paths) > p.k {
		paths = paths[:p.k]
	}
	for _, path := range paths {
		starts := feasibleStarts(obs.Spectrum.CommonFree(path.Links), req.SlotWidth)
		if len(starts) == 0 {
			continue
		}
		return sim.Admit(path.Links, p.pick(starts)), nil
	}
	return sim.RejectAction, nil
}

func (p *KSP) pick(starts []int) int {
	switch p.fit {
	case LastFit:
		return starts[len(starts)-1]
	case RandomFit:
		return starts[p.rng.IntN(len(starts))]
	default:
		return starts[0]
	}
}

// feasibleStarts returns, in ascending order, every slot index s such that
// free[s:s+width] is entirely free.
func feasibleStarts(free []bool, width int) []int {
	if width < 1 {
		return nil
	}
	var starts []int
	run := 0
	for i, ok := range free {
		if !ok {
			run = 0
			continue
		}
		run++
		if run >= width {
			starts = append(starts, i-width+1)
		}
	}
	return starts
}
