package evaluator

import (
	"github.com/rsa-sim/rsa-sim/sim/trace"
)

// BestTracker keeps the trace with the lowest blocking probability seen so far.
// A candidate replaces the current best only when strictly lower, so the
// earliest replica wins ties and the retained value never increases.
type BestTracker struct {
	trace   *trace.Trace
	summary trace.Summary
	set     bool
}

// Offer considers tr with its precomputed summary. Returns true if tr became
// the new best. Nil traces (failed replicas) are ignored.
func (b *BestTracker) Offer(tr *trace.Trace, s trace.Summary) bool {
	if tr == nil {
		return false
	}
	if b.set && s.BlockingProbability >= b.summary.BlockingProbability {
		return false
	}
	b.trace = tr
	b.summary = s
	b.set = true
	return true
}

// Best returns the retained trace and its summary; ok is false until the first Offer.
func (b *BestTracker) Best() (tr *trace.Trace, s trace.Summary, ok bool) {
	return b.trace, b.summary, b.set
}

// BlockingProbability returns the best blocking probability, or 1 before any Offer.
func (b *BestTracker) BlockingProbability() float64 {
	if !b.set {
		return 1
	}
	return b.summary.BlockingProbability
}
