// Defines the Request and Connection types that flow through the environment.
// A Request is what the traffic generator emits; a Connection is what an
// admitted request becomes while it holds spectrum.

package sim

import (
	"fmt"
)

// Request is a single connection request. Immutable once generated.
type Request struct {
	ID          int64   // Strictly increasing within a replica, starting at 0
	ArrivalTime float64 // Simulated arrival time
	HoldingTime float64 // Simulated holding duration once admitted
	Src         int     // Source node
	Dst         int     // Destination node
	SlotWidth   int     // Number of contiguous slots demanded
}

// DepartureTime returns the time the request would release its spectrum if admitted.
func (r Request) DepartureTime() float64 {
	return r.ArrivalTime + r.HoldingTime
}

// String returns a human-readable representation of a Request.
func (r Request) String() string {
	return fmt.Sprintf("Request: (ID: %d, %d->%d, width: %d, arrival: %.4f, holding: %.4f)",
		r.ID, r.Src, r.Dst, r.SlotWidth, r.ArrivalTime, r.HoldingTime)
}

// Connection is an admitted request holding [SlotStart, SlotStart+SlotWidth)
// on every link of Links until DepartureTime.
type Connection struct {
	RequestID     int64
	Links         []int
	SlotStart     int
	SlotWidth     int
	ArrivalTime   float64
	DepartureTime float64
}

// SlotEnd returns the exclusive end of the reserved slot range.
func (c *Connection) SlotEnd() int {
	return c.SlotStart + c.SlotWidth
}

// RequestSource produces the request sequence an Environment consumes.
// Next must return requests in non-decreasing arrival order with strictly
// increasing IDs. Reseed restarts the sequence deterministically.
type RequestSource interface {
	Next() Request
	Reseed(seed int64)
}
