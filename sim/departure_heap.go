package sim

import "container/heap"

// departureHeap orders active connections for release.
// Ordering: departure time → request ID.
type departureHeap struct {
	conns []*Connection
}

func newDepartureHeap() *departureHeap {
	h := &departureHeap{conns: make([]*Connection, 0)}
	heap.Init(h)
	return h
}

// Len implements heap.Interface
func (h *departureHeap) Len() int {
	return len(h.conns)
}

// Less implements heap.Interface with deterministic ordering
func (h *departureHeap) Less(i, j int) bool {
	ci, cj := h.conns[i], h.conns[j]
	if ci.DepartureTime != cj.DepartureTime {
		return ci.DepartureTime < cj.DepartureTime
	}
	// Tie-breaker: lower request ID first
	return ci.RequestID < cj.RequestID
}

// Swap implements heap.Interface
func (h *departureHeap) Swap(i, j int) {
	h.conns[i], h.conns[j] = h.conns[j], h.conns[i]
}

// Push implements heap.Interface
func (h *departureHeap) Push(x any) {
	h.conns = append(h.conns, x.(*Connection))
}

// Pop implements heap.Interface
func (h *departureHeap) Pop() any {
	old := h.conns
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	h.conns = old[:n-1]
	return item
}

func (h *departureHeap) schedule(c *Connection) {
	heap.Push(h, c)
}

// popDue removes and returns the next connection departing at or before t,
// or nil if none is due.
func (h *departureHeap) popDue(t float64) *Connection {
	if len(h.conns) == 0 || h.conns[0].DepartureTime > t {
		return nil
	}
	return heap.Pop(h).(*Connection)
}

func (h *departureHeap) reset() {
	clear(h.conns)
	h.conns = h.conns[:0]
}
