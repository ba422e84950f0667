// Package store persists experiments: their metadata and hyper-parameters,
// one evaluation row per replica, and the best experience trace.
//
// The simulation never depends on persistence succeeding. Callers hold an
// explicit Store handle, open it at batch start and Close it on every exit path.
package store

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/rsa-sim/rsa-sim/sim/trace"
)

// ErrClosed is returned by every Store method after Close.
var ErrClosed = errors.New("store closed")

// HyperParams are the experiment parameters persisted with the metadata.
// Keys follow the reference experiment scripts so results stay comparable.
type HyperParams struct {
	KPath                 int     `yaml:"k_path"`
	NSlot                 int     `yaml:"n_slot"`
	NRequests             int     `yaml:"n_requests"`
	WarmupNRequests       int     `yaml:"warmup_n_requests"`
	AvgServiceTime        float64 `yaml:"avg_service_time"`
	AvgRequestArrivalRate float64 `yaml:"avg_request_arrival_rate"`
	NRun                  int     `yaml:"n_run"`
	Seed                  int64   `yaml:"seed"`
}

// BestExperience identifies the persisted best trace.
type BestExperience struct {
	Replica             int     `yaml:"replica"`
	Seed                int64   `yaml:"seed"`
	Requests            int     `yaml:"requests"`
	BlockingProbability float64 `yaml:"blocking_probability"`
	Fingerprint         string  `yaml:"fingerprint"` // xxhash64 of the trace, hex
}

// Experiment is the metadata of one experiment.
type Experiment struct {
	Name        string          `yaml:"name"`
	Mode        string          `yaml:"mode"` // "run" (sequential) or "batch"
	Topology    string          `yaml:"topology"`
	Policy      string          `yaml:"policy"`
	CreatedAt   string          `yaml:"created_at,omitempty"`
	HyperParams HyperParams     `yaml:"hyper_params"`
	Best        *BestExperience `yaml:"best,omitempty"`
}

// Evaluation is one replica's metrics.
type Evaluation struct {
	Replica             int
	Batch               int
	BlockingProbability float64
	MeanUtilization     float64
	TotalReward         float64

	// TimeWeightedUtilization weights each utilization snapshot by the gap
	// to the next arrival.
	TimeWeightedUtilization float64
}

// Store is the experience-store boundary.
type Store interface {
	// SaveExperiment records experiment metadata, replacing any previous record.
	SaveExperiment(exp Experiment) error
	// SaveEvaluation appends one replica's metrics.
	SaveEvaluation(ev Evaluation) error
	// SaveExperience stores tr as the experiment's best trace, replacing any previous one.
	SaveExperience(tr *trace.Trace) error
	// DeleteExperiment removes everything stored for the experiment.
	DeleteExperiment() error
	Close() error
}

// Nop discards everything. Used when saving is disabled.
type Nop struct{}

func (Nop) SaveExperiment(Experiment) error   { return nil }
func (Nop) SaveEvaluation(Evaluation) error   { return nil }
func (Nop) SaveExperience(*trace.Trace) error { return nil }
func (Nop) DeleteExperiment() error           { return nil }
func (Nop) Close() error                      { return nil }

// nonFatal logs persistence failures instead of returning them.
type nonFatal struct {
	inner Store
}

// NonFatal wraps s so that failures are logged with logrus and reported as
// success. Results already computed in memory are never lost to a
// persistence error.
func NonFatal(s Store) Store {
	return &nonFatal{inner: s}
}

func (n *nonFatal) warn(op string, err error) error {
	if err != nil {
		logrus.Warnf("store: %s failed: %v", op, err)
	}
	return nil
}

func (n *nonFatal) SaveExperiment(exp Experiment) error {
	return n.warn("save experiment", n.inner.SaveExperiment(exp))
}

func (n *nonFatal) SaveEvaluation(ev Evaluation) error {
	return n.warn("save evaluation", n.inner.SaveEvaluation(ev))
}

func (n *nonFatal) SaveExperience(tr *trace.Trace) error {
	return n.warn("save experience", n.inner.SaveExperience(tr))
}

func (n *nonFatal) DeleteExperiment() error {
	return n.warn("delete experiment", n.inner.DeleteExperiment())
}

func (n *nonFatal) Close() error {
	return n.warn("close", n.inner.Close())
}
