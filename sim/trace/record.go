// Package trace provides experience-trace recording and summarization.
// It has no dependencies on sim/ and stores pure data types.
package trace

// Outcome captures the decision on a single request.
type Outcome struct {
	RequestID   int64
	ArrivalTime float64
	Src         int
	Dst         int
	SlotWidth   int
	Accepted    bool
	Path        []int // link ids; nil when blocked
	SlotStart   int   // -1 when blocked
	Reward      float64
	Utilization float64 // fraction of occupied slots over all links after the decision
	Reason      string  // block reason; empty when accepted
}
