package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/rsa-sim/rsa-sim/internal/observability"
	"github.com/rsa-sim/rsa-sim/sim"
	"github.com/rsa-sim/rsa-sim/sim/evaluator"
	"github.com/rsa-sim/rsa-sim/sim/policy"
	"github.com/rsa-sim/rsa-sim/sim/store"
	"github.com/rsa-sim/rsa-sim/sim/topology"
	"github.com/rsa-sim/rsa-sim/sim/traffic"
)

// Experiment modes.
const (
	ModeRun   = "run"   // replicas one after another, best tracked incrementally
	ModeBatch = "batch" // replicas on a worker pool, best selected after the join
)

// buildTopology resolves the configured network with n_slot slots per link.
func buildTopology(cfg *ExperimentConfig) (*topology.Topology, error) {
	if cfg.TopologyFile != "" {
		return topology.Load(cfg.TopologyFile, cfg.Slots, cfg.K)
	}
	return topology.Builtin(cfg.Network, cfg.Slots, cfg.K)
}

// newReplicaBuilder returns a builder giving every replica its own traffic
// generator, environment and policy instance over the shared topology.
func newReplicaBuilder(cfg *ExperimentConfig, topo *topology.Topology) (evaluator.ReplicaBuilder, error) {
	spec := cfg.Traffic
	spec.Nodes = topo.NodeCount()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	factory, err := policy.NewFactory(cfg.PolicyName(), cfg.K)
	if err != nil {
		return nil, err
	}
	envCfg := cfg.Env
	return func(replica int, seed int64) (*sim.Environment, sim.Policy, error) {
		gen, err := traffic.NewGenerator(spec, seed)
		if err != nil {
			return nil, nil, err
		}
		env, err := sim.NewEnvironment(topo, gen, envCfg)
		if err != nil {
			return nil, nil, err
		}
		p, err := factory(evaluator.PolicySeed(seed))
		if err != nil {
			return nil, nil, err
		}
		return env, p, nil
	}, nil
}

// hyperParams maps the config onto the persisted hyper-parameter keys.
func hyperParams(cfg *ExperimentConfig) store.HyperParams {
	return store.HyperParams{
		KPath:                 cfg.K,
		NSlot:                 cfg.Slots,
		NRequests:             cfg.Requests,
		WarmupNRequests:       cfg.WarmupRequests,
		AvgServiceTime:        cfg.Traffic.ServiceTime,
		AvgRequestArrivalRate: cfg.Traffic.ArrivalRate,
		NRun:                  cfg.Runs,
		Seed:                  cfg.Seed,
	}
}

// openStore returns the experience store for cfg. Persistence failures are
// never fatal: a store that cannot be opened degrades to Nop.
func openStore(cfg *ExperimentConfig) store.Store {
	if !cfg.Save.Enabled {
		return store.Nop{}
	}
	fs, err := store.Open(cfg.Save.DB, cfg.ExperimentName())
	if err != nil {
		logrus.Warnf("experience store disabled: %v", err)
		return store.Nop{}
	}
	logrus.Infof("saving experiment to %s", fs.Dir())
	return store.NonFatal(fs)
}

// runExperiment executes one experiment in mode and writes the report to out.
// Replica failures are reported, not returned; the error covers setup
// problems, cancellation, and the case where every replica failed.
func runExperiment(ctx context.Context, cfg *ExperimentConfig, mode string, out io.Writer) error {
	if mode != ModeRun && mode != ModeBatch {
		return fmt.Errorf("%w: unknown mode %q", sim.ErrInvalidConfig, mode)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	topo, err := buildTopology(cfg)
	if err != nil {
		return err
	}
	build, err := newReplicaBuilder(cfg, topo)
	if err != nil {
		return err
	}

	printHeader(out, cfg, topo)

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
		Exporter: cfg.TraceExporter,
		Endpoint: cfg.TraceEndpoint,
	})
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown)

	collector, err := observability.NewReplicaCollector(prometheus.NewRegistry())
	if err != nil {
		return err
	}

	vec, err := evaluator.NewVectorEvaluator(evaluator.VectorConfig{
		NumReplicas:     cfg.Runs,
		Workers:         cfg.Workers,
		BaseSeed:        cfg.Seed,
		WarmupRequests:  cfg.WarmupRequests,
		MeasureRequests: cfg.Requests,
		ReplicaTimeout:  cfg.ReplicaTimeout,
	}, build, evaluator.WithRecorder(collector))
	if err != nil {
		return err
	}

	st := openStore(cfg)
	defer func() { _ = st.Close() }()
	if cfg.Save.Overwrite {
		_ = st.DeleteExperiment()
	}
	_ = st.SaveExperiment(store.Experiment{
		Name:        cfg.ExperimentName(),
		Mode:        mode,
		Topology:    topo.Name(),
		Policy:      cfg.PolicyName(),
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		HyperParams: hyperParams(cfg),
	})

	var batch *evaluator.BatchResult
	var runErr error
	switch mode {
	case ModeRun:
		batch, runErr = runSequential(ctx, vec, st, out)
	case ModeBatch:
		batch, runErr = runBatch(ctx, vec, st, out)
	}

	if cfg.MetricsOut != "" {
		if err := collector.WriteTextfile(cfg.MetricsOut); err != nil {
			logrus.Warnf("writing metrics: %v", err)
		}
	}
	if runErr != nil {
		return runErr
	}
	logrus.Infof("%s finished: %d replicas, %d failed, wall time %s",
		cfg.ExperimentName(), len(batch.Replicas), batch.FailedCount(), batch.WallTime)
	if batch.FailedCount() == len(batch.Replicas) {
		return errors.New("every replica failed")
	}
	return nil
}

// runSequential evaluates replicas one at a time, reporting each as it
// finishes and persisting the experience whenever a new best appears.
// Only the running best trace is held between replicas.
func runSequential(ctx context.Context, vec *evaluator.VectorEvaluator, st store.Store, out io.Writer) (*evaluator.BatchResult, error) {
	var best evaluator.BestTracker
	batch, err := vec.RunSequential(ctx, func(r evaluator.ReplicaResult) error {
		printReplica(out, r)
		if r.Failed() {
			return nil
		}
		_ = st.SaveEvaluation(evaluationOf(r))
		if best.Offer(r.Trace, r.Summary) {
			logrus.Debugf("replica %d is the new best (bp=%v)", r.Replica, r.Summary.BlockingProbability)
			_ = st.SaveExperience(r.Trace)
		}
		return nil
	})
	if batch != nil {
		printBest(out, &best, len(batch.Replicas))
	}
	return batch, err
}

// runBatch evaluates every replica on the worker pool and reports after the join.
func runBatch(ctx context.Context, vec *evaluator.VectorEvaluator, st store.Store, out io.Writer) (*evaluator.BatchResult, error) {
	batch, err := vec.Run(ctx)
	if batch == nil {
		return nil, err
	}
	var best evaluator.BestTracker
	for _, r := range batch.Replicas {
		printReplica(out, r)
		if !r.Failed() {
			_ = st.SaveEvaluation(evaluationOf(r))
			best.Offer(r.Trace, r.Summary)
		}
	}
	if tr, _, ok := best.Best(); ok {
		_ = st.SaveExperience(tr)
	}
	printBest(out, &best, len(batch.Replicas))
	return batch, err
}

func evaluationOf(r evaluator.ReplicaResult) store.Evaluation {
	return store.Evaluation{
		Replica:             r.Replica,
		Batch:               1,
		BlockingProbability: r.Summary.BlockingProbability,
		MeanUtilization:     r.Summary.MeanUtilization,
		TotalReward:         r.Summary.TotalReward,

		TimeWeightedUtilization: r.Summary.TimeWeightedUtilization,
	}
}
