package sim

import (
	"fmt"

	"github.com/rsa-sim/rsa-sim/sim/topology"
)

// Observation is what a policy sees before deciding on a request.
// Spectrum is a read-only live view, valid only until the next Step.
type Observation struct {
	Request  *Request // nil when the current phase is done
	Spectrum *Spectrum
	Clock    float64
}

// Action is a policy's decision for the pending request:
// either Reject, or a path (as link ids) and the first slot of the range.
type Action struct {
	Reject    bool
	Links     []int
	SlotStart int
}

// RejectAction is the explicit reject decision.
var RejectAction = Action{Reject: true}

// Admit returns an action that places the request on links starting at slot.
func Admit(links []int, slot int) Action {
	return Action{Links: links, SlotStart: slot}
}

// String returns a human-readable representation of an Action.
func (a Action) String() string {
	if a.Reject {
		return "reject"
	}
	return fmt.Sprintf("admit(links=%v, slot=%d)", a.Links, a.SlotStart)
}

// Policy maps an observation to an action. Implementations are untrusted:
// infeasible actions are treated as a reject by the Environment, while a
// returned error aborts the replica.
type Policy interface {
	Decide(obs Observation) (Action, error)
}

// Preparer is implemented by policies that need one-time setup against the
// topology (e.g. caching candidate path tables). Prepare is called once per
// policy instance before the first Reset.
type Preparer interface {
	Prepare(topo *topology.Topology) error
}

// PreparePolicy calls p.Prepare if p implements Preparer.
func PreparePolicy(p Policy, topo *topology.Topology) error {
	if prep, ok := p.(Preparer); ok {
		if err := prep.Prepare(topo); err != nil {
			return fmt.Errorf("preparing policy: %w", err)
		}
	}
	return nil
}
