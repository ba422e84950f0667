package trace

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Trace is the ordered experience of one replica's measurement phase.
// Outcomes are appended in request-ID (arrival) order.
type Trace struct {
	Replica  int
	Seed     int64
	Outcomes []Outcome
}

// NewTrace creates a Trace ready for recording, with capacity for n outcomes.
func NewTrace(replica int, seed int64, n int) *Trace {
	return &Trace{
		Replica:  replica,
		Seed:     seed,
		Outcomes: make([]Outcome, 0, n),
	}
}

// Record appends an outcome.
func (t *Trace) Record(o Outcome) {
	t.Outcomes = append(t.Outcomes, o)
}

// Len returns the number of recorded outcomes.
func (t *Trace) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Outcomes)
}

// Fingerprint returns a 64-bit xxhash digest of every outcome field.
// Two traces with the same fingerprint are, for all practical purposes,
// bit-identical; it is what reproducibility checks compare.
func (t *Trace) Fingerprint() uint64 {
	d := xxhash.New()
	if t == nil {
		return d.Sum64()
	}
	var buf [8]byte
	putU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = d.Write(buf[:])
	}
	putF64 := func(v float64) { putU64(math.Float64bits(v)) }
	for _, o := range t.Outcomes {
		putU64(uint64(o.RequestID))
		putF64(o.ArrivalTime)
		putU64(uint64(o.Src))
		putU64(uint64(o.Dst))
		putU64(uint64(o.SlotWidth))
		if o.Accepted {
			putU64(1)
		} else {
			putU64(0)
		}
		putU64(uint64(len(o.Path)))
		for _, l := range o.Path {
			putU64(uint64(l))
		}
		putU64(uint64(int64(o.SlotStart)))
		putF64(o.Reward)
		putF64(o.Utilization)
		_, _ = d.WriteString(o.Reason)
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}
