package store

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/rsa-sim/rsa-sim/sim/trace"
)

// File names inside an experiment directory.
const (
	ExperimentFile  = "experiment.yaml"
	EvaluationsFile = "evaluations.csv"
	ExperienceFile  = "experience.csv"
)

var evaluationColumns = []string{
	"replica", "batch", "blocking_probability", "mean_utilization", "total_reward",
	"time_weighted_utilization",
}

var experienceColumns = []string{
	"request_id", "arrival_time", "src", "dst", "slot_width",
	"accepted", "path", "slot_start", "reward", "utilization", "reason",
}

// FileStore keeps one experiment under <root>/<name>/ as a YAML metadata
// file and two CSV files. Safe for concurrent use.
type FileStore struct {
	mu     sync.Mutex
	dir    string
	exp    *Experiment
	closed bool
}

// Open creates (if needed) the experiment directory under root.
func Open(root, name string) (*FileStore, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid experiment name %q", name)
	}
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating experiment directory: %w", err)
	}
	logrus.Debugf("store: opened %s", dir)
	return &FileStore{dir: dir}, nil
}

// Dir returns the experiment directory.
func (s *FileStore) Dir() string { return s.dir }

// SaveExperiment writes experiment.yaml.
func (s *FileStore) SaveExperiment(exp Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	cp := exp
	s.exp = &cp
	return s.writeExperiment()
}

func (s *FileStore) writeExperiment() error {
	data, err := yaml.Marshal(s.exp)
	if err != nil {
		return fmt.Errorf("marshaling experiment: %w", err)
	}
	return writeAtomic(filepath.Join(s.dir, ExperimentFile), data)
}

// SaveEvaluation appends a row to evaluations.csv, writing the header first
// if the file is new.
func (s *FileStore) SaveEvaluation(ev Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	path := filepath.Join(s.dir, EvaluationsFile)
	info, statErr := os.Stat(path)
	needHeader := statErr != nil || info.Size() == 0

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening evaluations: %w", err)
	}
	defer func() { _ = file.Close() }()

	w := csv.NewWriter(file)
	if needHeader {
		if err := w.Write(evaluationColumns); err != nil {
			return fmt.Errorf("writing CSV header: %w", err)
		}
	}
	if err := w.Write([]string{
		strconv.Itoa(ev.Replica),
		strconv.Itoa(ev.Batch),
		formatFloat(ev.BlockingProbability),
		formatFloat(ev.MeanUtilization),
		formatFloat(ev.TotalReward),
		formatFloat(ev.TimeWeightedUtilization),
	}); err != nil {
		return fmt.Errorf("writing evaluation row %d: %w", ev.Replica, err)
	}
	w.Flush()
	return w.Error()
}

// SaveExperience replaces experience.csv with tr and records the trace's
// identity in experiment.yaml when experiment metadata has been saved.
func (s *FileStore) SaveExperience(tr *trace.Trace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if tr == nil {
		return fmt.Errorf("nil experience trace")
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(experienceColumns); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, o := range tr.Outcomes {
		if err := w.Write(experienceRow(o)); err != nil {
			return fmt.Errorf("writing experience row %d: %w", o.RequestID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encoding experience: %w", err)
	}
	if err := writeAtomic(filepath.Join(s.dir, ExperienceFile), buf.Bytes()); err != nil {
		return err
	}

	if s.exp != nil {
		s.exp.Best = &BestExperience{
			Replica:             tr.Replica,
			Seed:                tr.Seed,
			Requests:            tr.Len(),
			BlockingProbability: trace.Summarize(tr).BlockingProbability,
			Fingerprint:         fmt.Sprintf("%016x", tr.Fingerprint()),
		}
		return s.writeExperiment()
	}
	return nil
}

// DeleteExperiment removes every file of the experiment and leaves an empty
// directory so the store stays usable.
func (s *FileStore) DeleteExperiment() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("deleting experiment: %w", err)
	}
	s.exp = nil
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("recreating experiment directory: %w", err)
	}
	return nil
}

// Close marks the store closed. Further calls return ErrClosed.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return nil
}

func experienceRow(o trace.Outcome) []string {
	links := make([]string, len(o.Path))
	for i, l := range o.Path {
		links[i] = strconv.Itoa(l)
	}
	return []string{
		strconv.FormatInt(o.RequestID, 10),
		formatFloat(o.ArrivalTime),
		strconv.Itoa(o.Src),
		strconv.Itoa(o.Dst),
		strconv.Itoa(o.SlotWidth),
		strconv.FormatBool(o.Accepted),
		strings.Join(links, ";"),
		strconv.Itoa(o.SlotStart),
		formatFloat(o.Reward),
		formatFloat(o.Utilization),
		o.Reason,
	}
}

// formatFloat uses the shortest representation that round-trips exactly.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// writeAtomic writes data to a temp file in the same directory and renames it
// over path, so readers never observe a half-written file.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("closing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}
