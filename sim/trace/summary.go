package trace

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary aggregates the metrics of one Trace.
type Summary struct {
	Requests            int
	Blocked             int
	BlockingProbability float64 // Blocked / Requests; 0 for an empty trace
	MeanUtilization     float64 // arithmetic mean of per-outcome utilization snapshots
	TotalReward         float64
	// TimeWeightedUtilization weights each snapshot by the time until the
	// next arrival. Reported alongside MeanUtilization; it differs under bursty traffic.
	TimeWeightedUtilization float64
}

// Summarize computes aggregate statistics from a Trace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(t *Trace) Summary {
	var s Summary
	if t.Len() == 0 {
		return s
	}

	n := len(t.Outcomes)
	utils := make([]float64, n)
	rewards := make([]float64, n)
	gaps := make([]float64, n)
	for i, o := range t.Outcomes {
		if !o.Accepted {
			s.Blocked++
		}
		utils[i] = o.Utilization
		rewards[i] = o.Reward
		if i+1 < n {
			gaps[i] = t.Outcomes[i+1].ArrivalTime - o.ArrivalTime
		}
	}

	s.Requests = n
	s.BlockingProbability = float64(s.Blocked) / float64(n)
	s.MeanUtilization = stat.Mean(utils, nil)
	s.TotalReward = floats.Sum(rewards)
	if floats.Sum(gaps) > 0 {
		s.TimeWeightedUtilization = stat.Mean(utils, gaps)
	} else {
		s.TimeWeightedUtilization = s.MeanUtilization
	}
	return s
}

// BatchSummary holds per-replica metrics ordered by replica id.
// Failed replicas carry NaN metrics and Failed[i] == true.
type BatchSummary struct {
	BlockingProbabilities []float64
	MeanUtilizations      []float64
	TotalRewards          []float64
	Failed                []bool
}

// SummarizeBatch summarizes each trace in order. A nil trace marks a failed
// replica: its metrics are NaN so it cannot be mistaken for a real result.
func SummarizeBatch(traces []*Trace) *BatchSummary {
	b := &BatchSummary{
		BlockingProbabilities: make([]float64, 0, len(traces)),
		MeanUtilizations:      make([]float64, 0, len(traces)),
		TotalRewards:          make([]float64, 0, len(traces)),
		Failed:                make([]bool, 0, len(traces)),
	}
	for _, t := range traces {
		if t == nil {
			b.Append(Summary{}, true)
			continue
		}
		b.Append(Summarize(t), false)
	}
	return b
}

// Append adds the next replica's summary. A failed replica gets NaN metrics.
func (b *BatchSummary) Append(s Summary, failed bool) {
	if failed {
		s.BlockingProbability = math.NaN()
		s.MeanUtilization = math.NaN()
		s.TotalReward = math.NaN()
	}
	b.BlockingProbabilities = append(b.BlockingProbabilities, s.BlockingProbability)
	b.MeanUtilizations = append(b.MeanUtilizations, s.MeanUtilization)
	b.TotalRewards = append(b.TotalRewards, s.TotalReward)
	b.Failed = append(b.Failed, failed)
}

// Best returns the index of the successful replica with the lowest blocking
// probability (lowest index on ties), or -1 if every replica failed.
func (b *BatchSummary) Best() int {
	best := -1
	for i, bp := range b.BlockingProbabilities {
		if b.Failed[i] {
			continue
		}
		if best < 0 || bp < b.BlockingProbabilities[best] {
			best = i
		}
	}
	return best
}
