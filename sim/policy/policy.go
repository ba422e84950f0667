// Package policy holds the closed set of named decision policies.
//
// Policies are selected by name through NewFactory; each Factory call
// returns a fresh instance so replicas never share mutable policy state.
package policy

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/rsa-sim/rsa-sim/sim"
)

// Policy names.
const (
	Reject = "reject"
	KSPFF  = "ksp-ff"
	KSPLF  = "ksp-lf"
	KSPRF  = "ksp-rf"
)

// ValidPolicies is the set of recognized policy names.
// Shared by NewFactory and configuration validation.
var ValidPolicies = map[string]bool{Reject: true, KSPFF: true, KSPLF: true, KSPRF: true}

// IsValidPolicy reports whether name is a recognized policy.
func IsValidPolicy(name string) bool {
	return ValidPolicies[name]
}

// Names returns the recognized policy names in sorted order.
func Names() []string {
	names := make([]string, 0, len(ValidPolicies))
	for n := range ValidPolicies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve maps a spectrum-assignment shorthand ("ff", "lf", "rf") to its
// k-shortest-path policy name. Full policy names pass through unchanged.
func Resolve(name string) string {
	if ValidPolicies[name] {
		return name
	}
	return "ksp-" + name
}

// Factory creates a fresh policy instance for one replica.
// seed is the replica's policy seed; deterministic policies ignore it.
type Factory func(seed int64) (sim.Policy, error)

// NewFactory returns the factory for a policy by name.
// k bounds the number of candidate paths the k-shortest-path policies consider.
func NewFactory(name string, k int) (Factory, error) {
	if !ValidPolicies[name] {
		return nil, fmt.Errorf("unknown policy %q; valid policies: [%s]", name, strings.Join(Names(), ", "))
	}
	if name != Reject && k < 1 {
		return nil, fmt.Errorf("policy %q: k must be >= 1, got %d", name, k)
	}
	switch name {
	case Reject:
		return func(int64) (sim.Policy, error) { return &AlwaysReject{}, nil }, nil
	case KSPFF:
		return func(int64) (sim.Policy, error) { return NewKSP(k, FirstFit, nil), nil }, nil
	case KSPLF:
		return func(int64) (sim.Policy, error) { return NewKSP(k, LastFit, nil), nil }, nil
	default:
		return func(seed int64) (sim.Policy, error) {
			u := uint64(seed)
			return NewKSP(k, RandomFit, rand.New(rand.NewPCG(u, u^0x9e3779b97f4a7c15))), nil
		}, nil
	}
}

// AlwaysReject rejects every request. Its blocking probability is 1 and it
// never occupies spectrum, which makes it the baseline for every other policy.
type AlwaysReject struct{}

func (a *AlwaysReject) Decide(sim.Observation) (sim.Action, error) {
	return sim.RejectAction, nil
}
