package sim

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rsa-sim/rsa-sim/sim/topology"
)

// scriptedSource replays a fixed request list. Past the end of the script it
// keeps emitting width-1 requests far in the future so phases never starve.
// Reseed rewinds to the start and records the seed it was given.
type scriptedSource struct {
	script []Request
	next   int
	seeds  []int64
}

func (s *scriptedSource) Next() Request {
	if s.next < len(s.script) {
		r := s.script[s.next]
		s.next++
		return r
	}
	last := Request{ID: -1}
	if len(s.script) > 0 {
		last = s.script[len(s.script)-1]
	}
	extra := s.next - len(s.script) + 1
	s.next++
	return Request{
		ID:          last.ID + int64(extra),
		ArrivalTime: last.ArrivalTime + 1000*float64(extra),
		HoldingTime: 1,
		Src:         0,
		Dst:         1,
		SlotWidth:   1,
	}
}

func (s *scriptedSource) Reseed(seed int64) {
	s.next = 0
	s.seeds = append(s.seeds, seed)
}

// singleLink returns a two-node, one-link topology with the given capacity.
func singleLink(t *testing.T, slots int) *topology.Topology {
	t.Helper()
	topo, err := topology.Builtin("single-link", slots, 1)
	require.NoError(t, err)
	return topo
}

// firstFit admits on the shortest candidate path at the lowest free slot,
// rejecting when nothing fits.
func firstFit(topo *topology.Topology) Policy {
	return policyFunc(func(obs Observation) (Action, error) {
		req := obs.Request
		for _, p := range topo.CandidatePaths(req.Src, req.Dst) {
			free := obs.Spectrum.CommonFree(p.Links)
			run := 0
			for i, ok := range free {
				if !ok {
					run = 0
					continue
				}
				run++
				if run == req.SlotWidth {
					return Admit(p.Links, i-req.SlotWidth+1), nil
				}
			}
		}
		return RejectAction, nil
	})
}

type policyFunc func(obs Observation) (Action, error)

func (f policyFunc) Decide(obs Observation) (Action, error) { return f(obs) }

func mustEnv(t *testing.T, topo *topology.Topology, src RequestSource) *Environment {
	t.Helper()
	env, err := NewEnvironment(topo, src, DefaultEnvConfig())
	require.NoError(t, err)
	return env
}
