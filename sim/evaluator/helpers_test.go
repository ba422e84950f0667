package evaluator

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/rsa-sim/rsa-sim/sim"
	"github.com/rsa-sim/rsa-sim/sim/policy"
	"github.com/rsa-sim/rsa-sim/sim/topology"
	"github.com/rsa-sim/rsa-sim/sim/traffic"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.ErrorLevel)
	}
	os.Exit(m.Run())
}

// listSource replays reqs and then far-future width-1 requests.
type listSource struct {
	reqs []sim.Request
	i    int
}

func (s *listSource) Next() sim.Request {
	s.i++
	if s.i <= len(s.reqs) {
		return s.reqs[s.i-1]
	}
	return sim.Request{ID: int64(s.i), ArrivalTime: 1e9 + float64(s.i), HoldingTime: 1, Src: 0, Dst: 1, SlotWidth: 1}
}

func (s *listSource) Reseed(int64) { s.i = 0 }

type policyFunc func(obs sim.Observation) (sim.Action, error)

func (f policyFunc) Decide(obs sim.Observation) (sim.Action, error) { return f(obs) }

// nsfBuilder builds replicas on NSF with Poisson traffic and the named policy.
func nsfBuilder(t *testing.T, name string, slots int) ReplicaBuilder {
	t.Helper()
	topo, err := topology.Builtin("nsf", slots, 3)
	require.NoError(t, err)
	factory, err := policy.NewFactory(name, 3)
	require.NoError(t, err)
	spec := traffic.DefaultSpec()
	spec.Nodes = topo.NodeCount()
	spec.Width = traffic.WidthSpec{Type: "uniform", Min: 1, Max: 4}
	return func(replica int, seed int64) (*sim.Environment, sim.Policy, error) {
		gen, err := traffic.NewGenerator(spec, seed)
		if err != nil {
			return nil, nil, err
		}
		env, err := sim.NewEnvironment(topo, gen, sim.DefaultEnvConfig())
		if err != nil {
			return nil, nil, err
		}
		p, err := factory(PolicySeed(seed))
		if err != nil {
			return nil, nil, err
		}
		return env, p, nil
	}
}
