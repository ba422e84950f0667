package trace

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func outcomes(accepted []bool, utils []float64, arrivals []float64) *Trace {
	tr := NewTrace(0, 0, len(accepted))
	for i := range accepted {
		o := Outcome{RequestID: int64(i), ArrivalTime: arrivals[i], Accepted: accepted[i], Utilization: utils[i], SlotStart: -1}
		if accepted[i] {
			o.Reward = 1
			o.SlotStart = 0
		} else {
			o.Reward = -1
			o.Reason = "rejected"
		}
		tr.Record(o)
	}
	return tr
}

func TestSummarize_EmptyTrace_ZeroBlocking(t *testing.T) {
	// GIVEN an empty and a nil trace
	// WHEN summarized
	// THEN blocking probability is 0, not NaN
	for _, tr := range []*Trace{NewTrace(0, 0, 0), nil} {
		s := Summarize(tr)
		assert.Equal(t, 0, s.Requests)
		assert.Equal(t, 0.0, s.BlockingProbability)
		assert.Equal(t, 0.0, s.MeanUtilization)
	}
}

func TestSummarize_CountsAndMeans(t *testing.T) {
	// GIVEN three outcomes, one blocked
	tr := outcomes(
		[]bool{true, true, false},
		[]float64{0.25, 0.5, 0.5},
		[]float64{0, 1, 2},
	)

	// WHEN summarized
	s := Summarize(tr)

	// THEN blocking is 1/3, mean utilization is the snapshot average, reward sums
	assert.Equal(t, 3, s.Requests)
	assert.Equal(t, 1, s.Blocked)
	assert.InDelta(t, 1.0/3.0, s.BlockingProbability, 1e-12)
	assert.InDelta(t, 1.25/3.0, s.MeanUtilization, 1e-12)
	assert.Equal(t, 1.0, s.TotalReward)
}

func TestSummarize_TimeWeightedUtilization(t *testing.T) {
	// GIVEN a short-lived high snapshot followed by a long low one
	tr := outcomes(
		[]bool{true, true, true},
		[]float64{0.9, 0.1, 0.3},
		[]float64{0, 1, 10},
	)

	// WHEN summarized
	s := Summarize(tr)

	// THEN the time-weighted mean uses inter-arrival gaps as weights (last gap is 0)
	assert.InDelta(t, (0.9*1+0.1*9)/10, s.TimeWeightedUtilization, 1e-12)
	assert.InDelta(t, 1.3/3, s.MeanUtilization, 1e-12)
}

func TestSummarize_SimultaneousArrivals_FallsBackToMean(t *testing.T) {
	tr := outcomes([]bool{true, false}, []float64{0.2, 0.4}, []float64{3, 3})
	s := Summarize(tr)
	assert.InDelta(t, 0.3, s.TimeWeightedUtilization, 1e-12)
}

func TestSummarize_BoundsHold(t *testing.T) {
	// GIVEN an arbitrary mix of outcomes
	tr := outcomes(
		[]bool{false, true, false, true, true},
		[]float64{0, 0.1, 0.1, 0.2, 0.15},
		[]float64{0, 0.3, 0.31, 1.2, 4},
	)
	s := Summarize(tr)

	// THEN both metrics stay in [0, 1]
	assert.GreaterOrEqual(t, s.BlockingProbability, 0.0)
	assert.LessOrEqual(t, s.BlockingProbability, 1.0)
	assert.GreaterOrEqual(t, s.MeanUtilization, 0.0)
	assert.LessOrEqual(t, s.MeanUtilization, 1.0)
}

func TestSummarizeBatch_FailedReplicaIsNaN(t *testing.T) {
	// GIVEN three replicas where the middle one failed
	good := outcomes([]bool{true, false}, []float64{0.1, 0.1}, []float64{0, 1})
	better := outcomes([]bool{true, true}, []float64{0.2, 0.3}, []float64{0, 1})

	// WHEN summarized as a batch
	b := SummarizeBatch([]*Trace{good, nil, better})

	// THEN the failed slot is NaN and flagged, others are real numbers
	require.Len(t, b.BlockingProbabilities, 3)
	assert.Equal(t, []bool{false, true, false}, b.Failed)
	assert.True(t, math.IsNaN(b.BlockingProbabilities[1]))
	assert.True(t, math.IsNaN(b.MeanUtilizations[1]))
	assert.True(t, math.IsNaN(b.TotalRewards[1]))
	assert.Equal(t, 0.5, b.BlockingProbabilities[0])
	assert.Equal(t, 0.0, b.BlockingProbabilities[2])

	// AND Best skips the failed replica
	assert.Equal(t, 2, b.Best())
}

func TestBatchSummary_Best_TieKeepsLowestIndex(t *testing.T) {
	a := outcomes([]bool{true, false}, []float64{0, 0}, []float64{0, 1})
	c := outcomes([]bool{false, true}, []float64{0, 0}, []float64{0, 1})
	b := SummarizeBatch([]*Trace{a, c})
	assert.Equal(t, 0, b.Best())
}

func TestBatchSummary_Best_AllFailed(t *testing.T) {
	b := SummarizeBatch([]*Trace{nil, nil})
	assert.Equal(t, -1, b.Best())
}
