package store

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rsa-sim/rsa-sim/sim/trace"
)

// LoadExperiment reads experiment.yaml from an experiment directory.
// Uses strict parsing: unrecognized keys are rejected.
func LoadExperiment(dir string) (*Experiment, error) {
	data, err := os.ReadFile(filepath.Join(dir, ExperimentFile))
	if err != nil {
		return nil, fmt.Errorf("reading experiment: %w", err)
	}
	var exp Experiment
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&exp); err != nil {
		return nil, fmt.Errorf("parsing experiment: %w", err)
	}
	return &exp, nil
}

// LoadEvaluations reads evaluations.csv from an experiment directory.
func LoadEvaluations(dir string) ([]Evaluation, error) {
	rows, err := readCSV(filepath.Join(dir, EvaluationsFile), len(evaluationColumns))
	if err != nil {
		return nil, err
	}
	out := make([]Evaluation, 0, len(rows))
	for i, row := range rows {
		var ev Evaluation
		var errs [6]error
		ev.Replica, errs[0] = strconv.Atoi(row[0])
		ev.Batch, errs[1] = strconv.Atoi(row[1])
		ev.BlockingProbability, errs[2] = strconv.ParseFloat(row[2], 64)
		ev.MeanUtilization, errs[3] = strconv.ParseFloat(row[3], 64)
		ev.TotalReward, errs[4] = strconv.ParseFloat(row[4], 64)
		ev.TimeWeightedUtilization, errs[5] = strconv.ParseFloat(row[5], 64)
		for _, e := range errs {
			if e != nil {
				return nil, fmt.Errorf("evaluations row %d: %w", i+1, e)
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

// LoadExperience reads experience.csv back into a Trace. Replica and Seed
// are taken from experiment.yaml when present.
func LoadExperience(dir string) (*trace.Trace, error) {
	rows, err := readCSV(filepath.Join(dir, ExperienceFile), len(experienceColumns))
	if err != nil {
		return nil, err
	}
	tr := trace.NewTrace(0, 0, len(rows))
	if exp, err := LoadExperiment(dir); err == nil && exp.Best != nil {
		tr.Replica = exp.Best.Replica
		tr.Seed = exp.Best.Seed
	}
	for i, row := range rows {
		o, err := parseOutcome(row)
		if err != nil {
			return nil, fmt.Errorf("experience row %d: %w", i+1, err)
		}
		tr.Record(o)
	}
	return tr, nil
}

func parseOutcome(row []string) (trace.Outcome, error) {
	var o trace.Outcome
	var err error
	if o.RequestID, err = strconv.ParseInt(row[0], 10, 64); err != nil {
		return o, err
	}
	if o.ArrivalTime, err = strconv.ParseFloat(row[1], 64); err != nil {
		return o, err
	}
	if o.Src, err = strconv.Atoi(row[2]); err != nil {
		return o, err
	}
	if o.Dst, err = strconv.Atoi(row[3]); err != nil {
		return o, err
	}
	if o.SlotWidth, err = strconv.Atoi(row[4]); err != nil {
		return o, err
	}
	if o.Accepted, err = strconv.ParseBool(row[5]); err != nil {
		return o, err
	}
	if row[6] != "" {
		for _, f := range strings.Split(row[6], ";") {
			l, err := strconv.Atoi(f)
			if err != nil {
				return o, err
			}
			o.Path = append(o.Path, l)
		}
	}
	if o.SlotStart, err = strconv.Atoi(row[7]); err != nil {
		return o, err
	}
	if o.Reward, err = strconv.ParseFloat(row[8], 64); err != nil {
		return o, err
	}
	if o.Utilization, err = strconv.ParseFloat(row[9], 64); err != nil {
		return o, err
	}
	o.Reason = row[10]
	return o, nil
}

// readCSV returns the data rows of a CSV file, checking the column count.
func readCSV(path string, columns int) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	defer func() { _ = file.Close() }()

	r := csv.NewReader(file)
	r.FieldsPerRecord = columns
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: missing header row", filepath.Base(path))
	}
	return records[1:], nil
}
