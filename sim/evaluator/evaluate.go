// Package evaluator drives policies through simulation environments:
// warm-up and measurement of a single replica, the vectorized replica pool,
// and best-run tracking over replica results.
package evaluator

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rsa-sim/rsa-sim/sim"
	"github.com/rsa-sim/rsa-sim/sim/trace"
)

// ErrNegativeCount is returned when a phase is given a negative request count.
var ErrNegativeCount = errors.New("request count must be >= 0")

// PolicyError reports a policy that returned an error or panicked.
// It aborts the replica; other replicas are unaffected.
type PolicyError struct {
	RequestID int64
	Panicked  bool
	Err       error
}

func (e *PolicyError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("policy panicked on request %d: %v", e.RequestID, e.Err)
	}
	return fmt.Sprintf("policy failed on request %d: %v", e.RequestID, e.Err)
}

func (e *PolicyError) Unwrap() error { return e.Err }

// WarmUp steps env through n requests and discards their outcomes.
// Occupancy built up during warm-up carries into the following phase.
func WarmUp(ctx context.Context, env *sim.Environment, policy sim.Policy, n int) error {
	if n < 0 {
		return fmt.Errorf("warm-up: %w, got %d", ErrNegativeCount, n)
	}
	return runPhase(ctx, env, policy, n, nil)
}

// Evaluate steps env through n requests and records one outcome per request,
// in arrival order, into tr.
func Evaluate(ctx context.Context, env *sim.Environment, policy sim.Policy, n int, tr *trace.Trace) error {
	if n < 0 {
		return fmt.Errorf("evaluate: %w, got %d", ErrNegativeCount, n)
	}
	if tr == nil {
		return fmt.Errorf("evaluate: nil trace")
	}
	return runPhase(ctx, env, policy, n, tr)
}

// RunReplica prepares policy, resets env with seed, runs warm-up and
// measurement back to back and returns the measurement trace.
func RunReplica(ctx context.Context, env *sim.Environment, policy sim.Policy, replica int, seed int64, warmup, measure int) (*trace.Trace, error) {
	if warmup < 0 || measure < 0 {
		return nil, fmt.Errorf("replica %d: %w, got warm-up=%d measure=%d", replica, ErrNegativeCount, warmup, measure)
	}
	if err := sim.PreparePolicy(policy, env.Topology()); err != nil {
		return nil, err
	}
	if _, err := env.Reset(seed); err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}
	if err := WarmUp(ctx, env, policy, warmup); err != nil {
		return nil, err
	}
	tr := trace.NewTrace(replica, seed, measure)
	if err := Evaluate(ctx, env, policy, measure, tr); err != nil {
		return nil, err
	}
	logrus.Debugf("replica %d: %d requests measured after %d warm-up, clock=%.3f",
		replica, tr.Len(), warmup, env.Clock())
	return tr, nil
}

// runPhase drives one BeginPhase budget to completion. The context is
// checked between steps, never in the middle of one.
func runPhase(ctx context.Context, env *sim.Environment, policy sim.Policy, n int, tr *trace.Trace) error {
	obs, err := env.BeginPhase(n)
	if err != nil {
		return err
	}
	for !env.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		action, err := decide(policy, obs)
		if err != nil {
			return err
		}
		res, err := env.Step(action)
		if err != nil {
			return err
		}
		if tr != nil {
			tr.Record(res.Outcome)
		}
		obs = res.Observation
	}
	return nil
}

// decide calls the policy, converting both returned errors and panics
// into *PolicyError.
func decide(policy sim.Policy, obs sim.Observation) (action sim.Action, err error) {
	var id int64 = -1
	if obs.Request != nil {
		id = obs.Request.ID
	}
	defer func() {
		if r := recover(); r != nil {
			err = &PolicyError{RequestID: id, Panicked: true, Err: fmt.Errorf("%v", r)}
		}
	}()
	action, err = policy.Decide(obs)
	if err != nil {
		return sim.Action{}, &PolicyError{RequestID: id, Err: err}
	}
	return action, nil
}
