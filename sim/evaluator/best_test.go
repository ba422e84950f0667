package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rsa-sim/rsa-sim/sim/trace"
)

func TestBestTracker_MonotoneStrictMinimum(t *testing.T) {
	// GIVEN a sequence of replica blocking probabilities
	bps := []float64{0.3, 0.5, 0.3, 0.1, 0.2, 0.1}
	wantReplaced := []bool{true, false, false, true, false, false}

	var b BestTracker
	assert.Equal(t, 1.0, b.BlockingProbability())
	_, _, ok := b.Best()
	assert.False(t, ok)

	prev := b.BlockingProbability()
	for i, bp := range bps {
		tr := trace.NewTrace(i, 0, 0)

		// WHEN each is offered in turn
		replaced := b.Offer(tr, trace.Summary{BlockingProbability: bp})

		// THEN only strictly lower values replace, and the best never increases
		assert.Equal(t, wantReplaced[i], replaced, "offer %d", i)
		assert.LessOrEqual(t, b.BlockingProbability(), prev)
		prev = b.BlockingProbability()
	}

	best, s, ok := b.Best()
	assert.True(t, ok)
	assert.Equal(t, 3, best.Replica)
	assert.Equal(t, 0.1, s.BlockingProbability)
}

func TestBestTracker_FirstOfferAlwaysWins(t *testing.T) {
	var b BestTracker
	assert.True(t, b.Offer(trace.NewTrace(0, 0, 0), trace.Summary{BlockingProbability: 1}))
}

func TestBestTracker_IgnoresNil(t *testing.T) {
	var b BestTracker
	assert.False(t, b.Offer(nil, trace.Summary{}))
	_, _, ok := b.Best()
	assert.False(t, ok)
}
