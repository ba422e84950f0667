package cmd

import (
	"fmt"
	"io"

	"github.com/rsa-sim/rsa-sim/sim/evaluator"
	"github.com/rsa-sim/rsa-sim/sim/topology"
)

// printHeader writes the experiment banner.
func printHeader(w io.Writer, cfg *ExperimentConfig, topo *topology.Topology) {
	fmt.Fprintf(w, "[EXP] %s\n", cfg.ExperimentName())
	fmt.Fprintf(w, "[NET] %s\n", topo.Name())
	fmt.Fprintf(w, "[SLOT] %d\n", cfg.Slots)
	fmt.Fprintf(w, "[REQ] %d\n", cfg.Requests)
}

// printReplica writes the metric lines of one replica.
func printReplica(w io.Writer, r evaluator.ReplicaResult) {
	if r.Failed() {
		fmt.Fprintf(w, "[%d-th ENV]FAILED: %v\n", r.Replica, r.Err)
		return
	}
	fmt.Fprintf(w, "[%d-th ENV]Blocking Probability: %v\n", r.Replica, r.Summary.BlockingProbability)
	fmt.Fprintf(w, "[%d-th ENV]Avg. Slot-utilization: %v\n", r.Replica, r.Summary.MeanUtilization)
	fmt.Fprintf(w, "[%d-th ENV]Total Rewards: %v\n", r.Replica, r.Summary.TotalReward)
}

// printBest writes the best replica held by tracker, if any.
func printBest(w io.Writer, tracker *evaluator.BestTracker, replicas int) {
	tr, s, ok := tracker.Best()
	if !ok {
		fmt.Fprintf(w, "[BEST] none: all %d replicas failed\n", replicas)
		return
	}
	fmt.Fprintf(w, "[BEST] %d-th ENV, Blocking Probability: %v, fingerprint %016x\n",
		tr.Replica, s.BlockingProbability, tr.Fingerprint())
}
