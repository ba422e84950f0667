package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsa-sim/rsa-sim/sim/store"
	"github.com/rsa-sim/rsa-sim/sim/traffic"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.ErrorLevel)
	}
	os.Exit(m.Run())
}

// smallConfig is a fast NSFNET experiment saved under db.
func smallConfig(db string) *ExperimentConfig {
	cfg := DefaultExperimentConfig()
	cfg.Slots = 16
	cfg.K = 2
	cfg.Runs = 3
	cfg.Requests = 300
	cfg.WarmupRequests = 50
	cfg.Seed = 11
	cfg.Traffic.Width = traffic.WidthSpec{Type: "uniform", Min: 1, Max: 4}
	cfg.Save = SaveConfig{Enabled: db != "", DB: db}
	return &cfg
}

func TestRunExperiment_SequentialReportsAndSaves(t *testing.T) {
	// GIVEN a saved three-replica experiment
	db := t.TempDir()
	cfg := smallConfig(db)
	var out bytes.Buffer

	// WHEN it runs in sequential mode
	require.NoError(t, runExperiment(context.Background(), cfg, ModeRun, &out))

	// THEN the banner and one block of metric lines per replica are printed
	text := out.String()
	assert.Contains(t, text, "[EXP] ksp-ff\n")
	assert.Contains(t, text, "[NET] nsf\n")
	assert.Contains(t, text, "[SLOT] 16\n")
	assert.Contains(t, text, "[REQ] 300\n")
	for i := 0; i < 3; i++ {
		assert.Contains(t, text, fmt.Sprintf("[%d-th ENV]Blocking Probability: ", i))
		assert.Contains(t, text, fmt.Sprintf("[%d-th ENV]Avg. Slot-utilization: ", i))
		assert.Contains(t, text, fmt.Sprintf("[%d-th ENV]Total Rewards: ", i))
	}
	assert.Contains(t, text, "[BEST] ")

	// AND evaluations, metadata and the best experience are persisted
	dir := filepath.Join(db, "ksp-ff")
	evals, err := store.LoadEvaluations(dir)
	require.NoError(t, err)
	require.Len(t, evals, 3)
	for i, ev := range evals {
		assert.Equal(t, i, ev.Replica)
		assert.Equal(t, 1, ev.Batch)
		assert.GreaterOrEqual(t, ev.BlockingProbability, 0.0)
		assert.LessOrEqual(t, ev.BlockingProbability, 1.0)
		assert.Greater(t, ev.TimeWeightedUtilization, 0.0)
	}

	exp, err := store.LoadExperiment(dir)
	require.NoError(t, err)
	assert.Equal(t, ModeRun, exp.Mode)
	assert.Equal(t, "nsf", exp.Topology)
	assert.Equal(t, 2, exp.HyperParams.KPath)
	assert.Equal(t, 300, exp.HyperParams.NRequests)
	require.NotNil(t, exp.Best)

	minBP := evals[0].BlockingProbability
	for _, ev := range evals[1:] {
		minBP = min(minBP, ev.BlockingProbability)
	}
	assert.Equal(t, minBP, exp.Best.BlockingProbability)

	tr, err := store.LoadExperience(dir)
	require.NoError(t, err)
	assert.Equal(t, 300, tr.Len())
	assert.Equal(t, exp.Best.Fingerprint, fmt.Sprintf("%016x", tr.Fingerprint()))
}

func TestRunExperiment_RunAndBatchAgree(t *testing.T) {
	// GIVEN the same experiment saved under two roots
	runDB, batchDB := t.TempDir(), t.TempDir()
	runCfg, batchCfg := smallConfig(runDB), smallConfig(batchDB)
	batchCfg.Workers = 3

	// WHEN one runs sequentially and the other as a parallel batch
	var runOut, batchOut bytes.Buffer
	require.NoError(t, runExperiment(context.Background(), runCfg, ModeRun, &runOut))
	require.NoError(t, runExperiment(context.Background(), batchCfg, ModeBatch, &batchOut))

	// THEN reports, evaluations and the best experience are identical
	assert.Equal(t, runOut.String(), batchOut.String())

	runEvals, err := store.LoadEvaluations(filepath.Join(runDB, "ksp-ff"))
	require.NoError(t, err)
	batchEvals, err := store.LoadEvaluations(filepath.Join(batchDB, "ksp-ff"))
	require.NoError(t, err)
	assert.Equal(t, runEvals, batchEvals)

	runExp, err := store.LoadExperiment(filepath.Join(runDB, "ksp-ff"))
	require.NoError(t, err)
	batchExp, err := store.LoadExperiment(filepath.Join(batchDB, "ksp-ff"))
	require.NoError(t, err)
	assert.Equal(t, runExp.Best, batchExp.Best)
}

func TestRunExperiment_RejectPolicyBlocksEverything(t *testing.T) {
	// GIVEN the always-reject policy over five replicas
	cfg := smallConfig("")
	cfg.Policy = "reject"
	cfg.Runs = 5
	cfg.Requests = 100
	var out bytes.Buffer

	// WHEN the batch runs
	require.NoError(t, runExperiment(context.Background(), cfg, ModeBatch, &out))

	// THEN every replica reports blocking probability 1 and zero utilization
	text := out.String()
	assert.Contains(t, text, "[EXP] reject\n")
	for i := 0; i < 5; i++ {
		assert.Contains(t, text, fmt.Sprintf("[%d-th ENV]Blocking Probability: 1\n", i))
		assert.Contains(t, text, fmt.Sprintf("[%d-th ENV]Avg. Slot-utilization: 0\n", i))
		assert.Contains(t, text, fmt.Sprintf("[%d-th ENV]Total Rewards: -100\n", i))
	}
}

func TestRunExperiment_OverwriteClearsPreviousResults(t *testing.T) {
	db := t.TempDir()
	cfg := smallConfig(db)
	cfg.Runs = 2
	require.NoError(t, runExperiment(context.Background(), cfg, ModeBatch, &bytes.Buffer{}))

	// WHEN the same experiment is rerun with overwrite
	cfg.Save.Overwrite = true
	require.NoError(t, runExperiment(context.Background(), cfg, ModeBatch, &bytes.Buffer{}))

	// THEN only the second run's evaluations remain
	evals, err := store.LoadEvaluations(filepath.Join(db, "ksp-ff"))
	require.NoError(t, err)
	assert.Len(t, evals, 2)
}

func TestRunExperiment_WritesMetricsTextfile(t *testing.T) {
	cfg := smallConfig("")
	cfg.MetricsOut = filepath.Join(t.TempDir(), "rsa.prom")

	require.NoError(t, runExperiment(context.Background(), cfg, ModeBatch, &bytes.Buffer{}))

	data, err := os.ReadFile(cfg.MetricsOut)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `rsa_replicas_total{status="ok"} 3`)
	assert.True(t, strings.Contains(text, "rsa_replica_duration_seconds"))
}

func TestRunExperiment_SetupErrors(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		cfg := smallConfig("")
		cfg.Runs = 0
		assert.Error(t, runExperiment(context.Background(), cfg, ModeRun, &bytes.Buffer{}))
	})
	t.Run("unknown mode", func(t *testing.T) {
		assert.Error(t, runExperiment(context.Background(), smallConfig(""), "stream", &bytes.Buffer{}))
	})
	t.Run("invalid traffic", func(t *testing.T) {
		cfg := smallConfig("")
		cfg.Traffic.ArrivalRate = -1
		assert.Error(t, runExperiment(context.Background(), cfg, ModeBatch, &bytes.Buffer{}))
	})
	t.Run("missing topology file", func(t *testing.T) {
		cfg := smallConfig("")
		cfg.TopologyFile = filepath.Join(t.TempDir(), "absent.yaml")
		assert.Error(t, runExperiment(context.Background(), cfg, ModeRun, &bytes.Buffer{}))
	})
}

func TestRunExperiment_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runExperiment(ctx, smallConfig(""), ModeRun, &bytes.Buffer{})

	assert.ErrorIs(t, err, context.Canceled)
}
