// Package observability wires Prometheus metrics and OpenTelemetry tracing
// into replica evaluation.
package observability

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/rsa-sim/rsa-sim/sim/evaluator"
)

// ReplicaCollector bundles Prometheus metrics for replica evaluation and
// implements evaluator.Recorder. All methods are nil-safe.
type ReplicaCollector struct {
	gatherer prometheus.Gatherer

	Replicas            *prometheus.CounterVec
	ReplicaDurations    prometheus.Histogram
	BlockingProbability *prometheus.GaugeVec
	Requests            *prometheus.CounterVec
	InFlight            prometheus.Gauge
}

var _ evaluator.Recorder = (*ReplicaCollector)(nil)

// NewReplicaCollector registers replica metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewReplicaCollector(reg prometheus.Registerer) (*ReplicaCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	replicas, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rsa_replicas_total",
		Help: "Total number of finished replicas, labeled by status (ok, failed).",
	}, []string{"status"}), "rsa_replicas_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rsa_replica_duration_seconds",
		Help:    "Wall-clock time to build and run one replica.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}), "rsa_replica_duration_seconds")
	if err != nil {
		return nil, err
	}

	blocking, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rsa_replica_blocking_probability",
		Help: "Measured blocking probability of each successful replica.",
	}, []string{"replica"}), "rsa_replica_blocking_probability")
	if err != nil {
		return nil, err
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rsa_requests_total",
		Help: "Measured requests over all successful replicas, labeled by outcome (accepted, blocked).",
	}, []string{"outcome"}), "rsa_requests_total")
	if err != nil {
		return nil, err
	}

	inflight, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rsa_replicas_in_flight",
		Help: "Replicas currently running.",
	}), "rsa_replicas_in_flight")
	if err != nil {
		return nil, err
	}

	return &ReplicaCollector{
		gatherer:            gatherer,
		Replicas:            replicas,
		ReplicaDurations:    durations,
		BlockingProbability: blocking,
		Requests:            requests,
		InFlight:            inflight,
	}, nil
}

// ReplicaStarted implements evaluator.Recorder.
func (c *ReplicaCollector) ReplicaStarted(int) {
	if c == nil || c.InFlight == nil {
		return
	}
	c.InFlight.Inc()
}

// ReplicaFinished implements evaluator.Recorder.
func (c *ReplicaCollector) ReplicaFinished(res evaluator.ReplicaResult) {
	if c == nil {
		return
	}
	if c.InFlight != nil {
		c.InFlight.Dec()
	}
	if c.ReplicaDurations != nil {
		c.ReplicaDurations.Observe(res.WallTime.Seconds())
	}
	status := "ok"
	if res.Failed() {
		status = "failed"
	}
	if c.Replicas != nil {
		c.Replicas.WithLabelValues(status).Inc()
	}
	if res.Failed() {
		return
	}
	if c.BlockingProbability != nil {
		c.BlockingProbability.WithLabelValues(strconv.Itoa(res.Replica)).Set(res.Summary.BlockingProbability)
	}
	if c.Requests != nil {
		c.Requests.WithLabelValues("accepted").Add(float64(res.Summary.Requests - res.Summary.Blocked))
		c.Requests.WithLabelValues("blocked").Add(float64(res.Summary.Blocked))
	}
}

// WriteTextfile writes the collector's registry in the Prometheus text
// format, for node-exporter textfile collection of batch runs.
func (c *ReplicaCollector) WriteTextfile(path string) error {
	if c == nil {
		return nil
	}
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if err := prometheus.WriteToTextfile(path, gatherer); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	logrus.Debugf("metrics written to %s", path)
	return nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
