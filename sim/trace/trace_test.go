package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrace_Record_AppendsInOrder(t *testing.T) {
	// GIVEN an empty trace for replica 2
	tr := NewTrace(2, 99, 4)

	// WHEN two outcomes are recorded
	tr.Record(Outcome{RequestID: 0, Accepted: true, Path: []int{1}, SlotStart: 0})
	tr.Record(Outcome{RequestID: 1, SlotStart: -1, Reason: "rejected"})

	// THEN they are kept in recording order with the replica metadata intact
	require.Equal(t, 2, tr.Len())
	assert.Equal(t, int64(0), tr.Outcomes[0].RequestID)
	assert.Equal(t, int64(1), tr.Outcomes[1].RequestID)
	assert.Equal(t, 2, tr.Replica)
	assert.Equal(t, int64(99), tr.Seed)
}

func TestTrace_Len_NilSafe(t *testing.T) {
	var tr *Trace
	assert.Equal(t, 0, tr.Len())
}

func TestTrace_Fingerprint_EqualForIdenticalTraces(t *testing.T) {
	// GIVEN two traces built from the same outcomes
	build := func() *Trace {
		tr := NewTrace(0, 7, 2)
		tr.Record(Outcome{RequestID: 0, ArrivalTime: 0.5, Src: 1, Dst: 3, SlotWidth: 2, Accepted: true, Path: []int{4, 5}, SlotStart: 0, Reward: 1, Utilization: 0.01})
		tr.Record(Outcome{RequestID: 1, ArrivalTime: 0.9, Src: 2, Dst: 0, SlotWidth: 3, SlotStart: -1, Reward: -1, Utilization: 0.01, Reason: "occupied"})
		return tr
	}

	// THEN their fingerprints match
	assert.Equal(t, build().Fingerprint(), build().Fingerprint())
}

func TestTrace_Fingerprint_SensitiveToEveryField(t *testing.T) {
	base := Outcome{RequestID: 0, ArrivalTime: 0.5, Src: 1, Dst: 3, SlotWidth: 2, Accepted: true, Path: []int{4, 5}, SlotStart: 0, Reward: 1, Utilization: 0.25}
	fp := func(o Outcome) uint64 {
		tr := NewTrace(0, 0, 1)
		tr.Record(o)
		return tr.Fingerprint()
	}
	want := fp(base)

	tests := []struct {
		name   string
		mutate func(o *Outcome)
	}{
		{"request id", func(o *Outcome) { o.RequestID = 1 }},
		{"arrival", func(o *Outcome) { o.ArrivalTime = 0.5000001 }},
		{"src", func(o *Outcome) { o.Src = 2 }},
		{"dst", func(o *Outcome) { o.Dst = 4 }},
		{"width", func(o *Outcome) { o.SlotWidth = 3 }},
		{"accepted", func(o *Outcome) { o.Accepted = false }},
		{"path", func(o *Outcome) { o.Path = []int{5, 4} }},
		{"slot", func(o *Outcome) { o.SlotStart = 1 }},
		{"reward", func(o *Outcome) { o.Reward = 2 }},
		{"utilization", func(o *Outcome) { o.Utilization = 0.5 }},
		{"reason", func(o *Outcome) { o.Reason = "x" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := base
			o.Path = append([]int(nil), base.Path...)
			tc.mutate(&o)
			assert.NotEqual(t, want, fp(o))
		})
	}
}
