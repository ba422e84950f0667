package evaluator

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/rsa-sim/rsa-sim/sim"
	"github.com/rsa-sim/rsa-sim/sim/trace"
)

const tracerName = "github.com/rsa-sim/rsa-sim/sim/evaluator"

// VectorConfig configures a batch of independent replicas.
type VectorConfig struct {
	NumReplicas     int
	Workers         int // 0 = min(NumReplicas, GOMAXPROCS)
	BaseSeed        int64
	WarmupRequests  int
	MeasureRequests int
	ReplicaTimeout  time.Duration // 0 = no per-replica deadline
}

// Validate checks the batch configuration before any replica starts.
func (c VectorConfig) Validate() error {
	if c.NumReplicas < 1 {
		return fmt.Errorf("%w: replicas must be >= 1, got %d", sim.ErrInvalidConfig, c.NumReplicas)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", sim.ErrInvalidConfig, c.Workers)
	}
	if c.WarmupRequests < 0 {
		return fmt.Errorf("%w: warm-up requests must be >= 0, got %d", sim.ErrInvalidConfig, c.WarmupRequests)
	}
	if c.MeasureRequests < 0 {
		return fmt.Errorf("%w: measured requests must be >= 0, got %d", sim.ErrInvalidConfig, c.MeasureRequests)
	}
	if c.ReplicaTimeout < 0 {
		return fmt.Errorf("%w: replica timeout must be >= 0, got %s", sim.ErrInvalidConfig, c.ReplicaTimeout)
	}
	return nil
}

func (c VectorConfig) workers() int {
	if c.Workers > 0 {
		return min(c.Workers, c.NumReplicas)
	}
	return max(1, min(c.NumReplicas, runtime.GOMAXPROCS(0)))
}

// ReplicaBuilder constructs the Environment and Policy of one replica.
// It is called on the worker goroutine that runs the replica; everything it
// returns must be owned by that replica alone.
type ReplicaBuilder func(replica int, seed int64) (*sim.Environment, sim.Policy, error)

// PolicySeed derives the policy seed of a replica from its replica seed.
func PolicySeed(replicaSeed int64) int64 {
	return sim.NewPartitionedRNG(replicaSeed).SeedFor(sim.SubsystemPolicy)
}

// ReplicaError reports a replica that did not produce a trace.
type ReplicaError struct {
	Replica int
	Seed    int64
	Err     error
}

func (e *ReplicaError) Error() string {
	return fmt.Sprintf("replica %d (seed %d): %v", e.Replica, e.Seed, e.Err)
}

func (e *ReplicaError) Unwrap() error { return e.Err }

// ReplicaResult is the outcome of one replica. Trace is nil iff Err is set.
type ReplicaResult struct {
	Replica  int
	Seed     int64
	Trace    *trace.Trace
	Summary  trace.Summary
	Err      error
	WallTime time.Duration
}

// Failed reports whether the replica produced no trace.
func (r ReplicaResult) Failed() bool { return r.Err != nil }

// BatchResult holds every replica's result indexed by replica id.
// Results from Run keep every trace; results from RunSequential keep only
// the best replica's trace and a Summary for the rest.
type BatchResult struct {
	Replicas []ReplicaResult
	WallTime time.Duration
}

// Traces returns the per-replica traces in replica order; failed replicas,
// and replicas whose trace was dropped by RunSequential, are nil.
func (b *BatchResult) Traces() []*trace.Trace {
	out := make([]*trace.Trace, len(b.Replicas))
	for i, r := range b.Replicas {
		out[i] = r.Trace
	}
	return out
}

// Summary returns the per-replica metric vectors. It reads the summaries
// computed when each replica finished, so it does not need the traces.
func (b *BatchResult) Summary() *trace.BatchSummary {
	s := &trace.BatchSummary{}
	for _, r := range b.Replicas {
		s.Append(r.Summary, r.Failed())
	}
	return s
}

// FailedCount returns the number of replicas that failed.
func (b *BatchResult) FailedCount() int {
	n := 0
	for _, r := range b.Replicas {
		if r.Failed() {
			n++
		}
	}
	return n
}

// Best returns the successful replica with the lowest blocking probability,
// lowest replica id on ties. ok is false if every replica failed.
func (b *BatchResult) Best() (ReplicaResult, bool) {
	var tracker BestTracker
	best := -1
	for i, r := range b.Replicas {
		if tracker.Offer(r.Trace, r.Summary) {
			best = i
		}
	}
	if best < 0 {
		return ReplicaResult{}, false
	}
	return b.Replicas[best], true
}

// Recorder observes replica lifecycles. Implementations must be safe for
// concurrent use: calls arrive from every worker goroutine.
type Recorder interface {
	ReplicaStarted(replica int)
	ReplicaFinished(res ReplicaResult)
}

type nopRecorder struct{}

func (nopRecorder) ReplicaStarted(int)            {}
func (nopRecorder) ReplicaFinished(ReplicaResult) {}

// Option configures a VectorEvaluator.
type Option func(*VectorEvaluator)

// WithRecorder installs a lifecycle recorder.
func WithRecorder(r Recorder) Option {
	return func(v *VectorEvaluator) {
		if r != nil {
			v.recorder = r
		}
	}
}

// VectorEvaluator runs independent replicas on a pool of worker goroutines.
// A replica's trace depends only on (BaseSeed, replica id), so results are
// identical for any worker count or scheduling order.
type VectorEvaluator struct {
	cfg      VectorConfig
	build    ReplicaBuilder
	recorder Recorder
}

// NewVectorEvaluator validates cfg and returns an evaluator.
func NewVectorEvaluator(cfg VectorConfig, build ReplicaBuilder, opts ...Option) (*VectorEvaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if build == nil {
		return nil, fmt.Errorf("%w: nil replica builder", sim.ErrInvalidConfig)
	}
	v := &VectorEvaluator{cfg: cfg, build: build, recorder: nopRecorder{}}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Config returns the evaluator's configuration.
func (v *VectorEvaluator) Config() VectorConfig { return v.cfg }

// Run executes every replica on the worker pool and joins. Failed replicas
// are reported in their ReplicaResult and never abort the batch. If ctx is
// cancelled, the partial result is returned together with ctx.Err().
func (v *VectorEvaluator) Run(ctx context.Context) (*BatchResult, error) {
	start := time.Now()
	workers := v.cfg.workers()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "evaluator.batch", oteltrace.WithAttributes(
		attribute.Int("replicas", v.cfg.NumReplicas),
		attribute.Int("workers", workers),
		attribute.Int64("base_seed", v.cfg.BaseSeed),
	))
	defer span.End()

	jobs := make(chan int, v.cfg.NumReplicas)
	results := make(chan ReplicaResult, v.cfg.NumReplicas)
	for i := 0; i < v.cfg.NumReplicas; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results <- v.runOne(ctx, i)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	batch := &BatchResult{Replicas: make([]ReplicaResult, v.cfg.NumReplicas)}
	for r := range results {
		batch.Replicas[r.Replica] = r
	}
	batch.WallTime = time.Since(start)

	failed := batch.FailedCount()
	span.SetAttributes(attribute.Int("failed", failed))
	logrus.Debugf("batch: %d replicas on %d workers in %s, %d failed",
		v.cfg.NumReplicas, workers, batch.WallTime, failed)
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return batch, err
	}
	return batch, nil
}

// RunSequential executes the replicas one after another in replica order on
// the calling goroutine, calling fn after each. A non-nil error from fn
// stops the loop and is returned. Traces are identical to Run's.
//
// fn is the only place every trace is visible. The returned batch holds at
// most one trace, the running best, so memory does not grow with NumReplicas.
func (v *VectorEvaluator) RunSequential(ctx context.Context, fn func(ReplicaResult) error) (*BatchResult, error) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "evaluator.sequential", oteltrace.WithAttributes(
		attribute.Int("replicas", v.cfg.NumReplicas),
		attribute.Int64("base_seed", v.cfg.BaseSeed),
	))
	defer span.End()

	batch := &BatchResult{Replicas: make([]ReplicaResult, 0, v.cfg.NumReplicas)}
	var best BestTracker
	bestIdx := -1
	for i := 0; i < v.cfg.NumReplicas; i++ {
		if err := ctx.Err(); err != nil {
			batch.WallTime = time.Since(start)
			return batch, err
		}
		res := v.runOne(ctx, i)
		kept := res
		if best.Offer(res.Trace, res.Summary) {
			if bestIdx >= 0 {
				batch.Replicas[bestIdx].Trace = nil
			}
			bestIdx = len(batch.Replicas)
		} else {
			kept.Trace = nil
		}
		batch.Replicas = append(batch.Replicas, kept)
		if fn != nil {
			if err := fn(res); err != nil {
				batch.WallTime = time.Since(start)
				return batch, err
			}
		}
	}
	batch.WallTime = time.Since(start)
	return batch, nil
}

// runOne builds and runs replica i. Panics anywhere in the replica are
// recovered into a ReplicaError so one bad replica cannot take down the pool.
func (v *VectorEvaluator) runOne(ctx context.Context, i int) (res ReplicaResult) {
	seed := sim.ReplicaSeed(v.cfg.BaseSeed, i)
	res = ReplicaResult{Replica: i, Seed: seed}
	start := time.Now()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "evaluator.replica", oteltrace.WithAttributes(
		attribute.Int("replica", i),
		attribute.Int64("seed", seed),
	))
	v.recorder.ReplicaStarted(i)
	defer func() {
		if r := recover(); r != nil {
			res.Trace = nil
			res.Err = &ReplicaError{Replica: i, Seed: seed, Err: fmt.Errorf("panic: %v", r)}
		}
		res.WallTime = time.Since(start)
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
			logrus.Warnf("replica %d failed: %v", i, res.Err)
		} else {
			span.SetAttributes(attribute.Float64("blocking_probability", res.Summary.BlockingProbability))
		}
		span.End()
		v.recorder.ReplicaFinished(res)
	}()

	if v.cfg.ReplicaTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.cfg.ReplicaTimeout)
		defer cancel()
	}

	env, policy, err := v.build(i, seed)
	if err != nil {
		res.Err = &ReplicaError{Replica: i, Seed: seed, Err: fmt.Errorf("build: %w", err)}
		return res
	}
	tr, err := RunReplica(ctx, env, policy, i, seed, v.cfg.WarmupRequests, v.cfg.MeasureRequests)
	if err != nil {
		res.Err = &ReplicaError{Replica: i, Seed: seed, Err: err}
		return res
	}
	res.Trace = tr
	res.Summary = trace.Summarize(tr)
	return res
}

// IsPolicyFailure reports whether err was caused by a policy error or panic.
func IsPolicyFailure(err error) bool {
	var pe *PolicyError
	return errors.As(err, &pe)
}
