package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsa-sim/rsa-sim/sim"
	"github.com/rsa-sim/rsa-sim/sim/topology"
)

// stubSource replays reqs, then keeps emitting far-future width-1 requests.
type stubSource struct {
	reqs []sim.Request
	i    int
}

func (s *stubSource) Next() sim.Request {
	if s.i < len(s.reqs) {
		s.i++
		return s.reqs[s.i-1]
	}
	s.i++
	return sim.Request{ID: int64(s.i), ArrivalTime: 1e6 + float64(s.i), HoldingTime: 1, Src: 0, Dst: 1, SlotWidth: 1}
}

func (s *stubSource) Reseed(int64) { s.i = 0 }

func newPrepared(t *testing.T, name string, k int, topo *topology.Topology, seed int64) sim.Policy {
	t.Helper()
	f, err := NewFactory(name, k)
	require.NoError(t, err)
	p, err := f(seed)
	require.NoError(t, err)
	require.NoError(t, sim.PreparePolicy(p, topo))
	return p
}

func TestNewFactory_UnknownName(t *testing.T) {
	_, err := NewFactory("dijkstra-bf", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ksp-ff")
}

func TestNewFactory_FreshInstancePerCall(t *testing.T) {
	f, err := NewFactory(KSPFF, 3)
	require.NoError(t, err)
	a, _ := f(0)
	b, _ := f(0)
	assert.NotSame(t, a, b)
}

func TestNewFactory_RejectsBadK(t *testing.T) {
	_, err := NewFactory(KSPLF, 0)
	assert.Error(t, err)
	_, err = NewFactory(Reject, 0)
	assert.NoError(t, err)
}

func TestResolve(t *testing.T) {
	assert.Equal(t, KSPFF, Resolve("ff"))
	assert.Equal(t, KSPRF, Resolve("rf"))
	assert.Equal(t, Reject, Resolve("reject"))
	assert.Equal(t, KSPLF, Resolve(KSPLF))
	assert.False(t, IsValidPolicy(Resolve("xx")))
}

func TestAlwaysReject(t *testing.T) {
	a, err := (&AlwaysReject{}).Decide(sim.Observation{})
	require.NoError(t, err)
	assert.True(t, a.Reject)
}

func TestKSP_FitStrategies(t *testing.T) {
	// GIVEN an 8-slot link with slots 2-3 busy and a width-2 request
	topo, err := topology.Builtin("single-link", 8, 1)
	require.NoError(t, err)
	src := &stubSource{reqs: []sim.Request{
		{ID: 0, ArrivalTime: 0, HoldingTime: 100, Src: 0, Dst: 1, SlotWidth: 2},
		{ID: 1, ArrivalTime: 1, HoldingTime: 100, Src: 0, Dst: 1, SlotWidth: 2},
	}}
	tests := []struct {
		name    string
		policy  string
		allowed []int
	}{
		{"first fit takes lowest", KSPFF, []int{0}},
		{"last fit takes highest", KSPLF, []int{6}},
		{"random fit takes any feasible", KSPRF, []int{0, 4, 5, 6}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env, err := sim.NewEnvironment(topo, src, sim.DefaultEnvConfig())
			require.NoError(t, err)
			_, err = env.Reset(0)
			require.NoError(t, err)
			res, err := env.Step(sim.Admit([]int{0}, 2))
			require.NoError(t, err)
			require.True(t, res.Outcome.Accepted)

			// WHEN the policy decides the next request
			p := newPrepared(t, tc.policy, 1, topo, 9)
			action, err := p.Decide(res.Observation)
			require.NoError(t, err)

			// THEN it admits at a slot allowed by its fit strategy
			require.False(t, action.Reject)
			assert.Equal(t, []int{0}, action.Links)
			assert.Contains(t, tc.allowed, action.SlotStart)
		})
	}
}

func TestKSP_FallsBackToSecondPath(t *testing.T) {
	// GIVEN a triangle where the direct 0-1 link is full
	topo, err := topology.New("triangle", 3, []topology.LinkSpec{
		{From: 0, To: 1, Length: 1},
		{From: 1, To: 2, Length: 1},
		{From: 0, To: 2, Length: 1},
	}, 2, 2)
	require.NoError(t, err)
	direct, _ := topo.LinkBetween(0, 1)
	src := &stubSource{reqs: []sim.Request{
		{ID: 0, ArrivalTime: 0, HoldingTime: 100, Src: 0, Dst: 1, SlotWidth: 2},
		{ID: 1, ArrivalTime: 1, HoldingTime: 100, Src: 0, Dst: 1, SlotWidth: 2},
	}}
	env, err := sim.NewEnvironment(topo, src, sim.DefaultEnvConfig())
	require.NoError(t, err)
	_, err = env.Reset(0)
	require.NoError(t, err)
	res, err := env.Step(sim.Admit([]int{direct}, 0))
	require.NoError(t, err)

	// WHEN k=2 first-fit decides the second request
	p := newPrepared(t, KSPFF, 2, topo, 0)
	action, err := p.Decide(res.Observation)
	require.NoError(t, err)

	// THEN it uses the two-hop path
	require.False(t, action.Reject)
	assert.Len(t, action.Links, 2)
	assert.True(t, topo.ValidPath(0, 1, action.Links))

	// AND with k=1 it rejects
	p1 := newPrepared(t, KSPFF, 1, topo, 0)
	action, err = p1.Decide(res.Observation)
	require.NoError(t, err)
	assert.True(t, action.Reject)
}

func TestKSP_RandomFit_DeterministicPerSeed(t *testing.T) {
	topo, err := topology.Builtin("single-link", 64, 1)
	require.NoError(t, err)
	env, err := sim.NewEnvironment(topo, &stubSource{}, sim.DefaultEnvConfig())
	require.NoError(t, err)
	obs, err := env.Reset(0)
	require.NoError(t, err)

	draw := func(seed int64) []int {
		p := newPrepared(t, KSPRF, 1, topo, seed)
		var out []int
		for i := 0; i < 10; i++ {
			a, err := p.Decide(obs)
			require.NoError(t, err)
			out = append(out, a.SlotStart)
		}
		return out
	}
	assert.Equal(t, draw(5), draw(5))
	assert.NotEqual(t, draw(5), draw(6))
}

func TestKSP_Unprepared(t *testing.T) {
	_, err := NewKSP(1, FirstFit, nil).Decide(sim.Observation{Request: &sim.Request{}})
	assert.ErrorIs(t, err, ErrNotPrepared)
}

func TestKSP_Prepare_KExceedsTopology(t *testing.T) {
	topo, err := topology.Builtin("nsf", 10, 2)
	require.NoError(t, err)
	assert.Error(t, NewKSP(3, FirstFit, nil).Prepare(topo))
}

func TestFeasibleStarts(t *testing.T) {
	free := []bool{true, true, false, true, true, true}
	assert.Equal(t, []int{0, 3, 4}, feasibleStarts(free, 2))
	assert.Equal(t, []int{3}, feasibleStarts(free, 3))
	assert.Nil(t, feasibleStarts(free, 4))
	assert.Nil(t, feasibleStarts(free, 0))
}
