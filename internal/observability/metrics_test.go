package observability

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsa-sim/rsa-sim/sim/evaluator"
	"github.com/rsa-sim/rsa-sim/sim/trace"
)

func TestReplicaCollector_RecordsSuccessAndFailure(t *testing.T) {
	// GIVEN a collector on a private registry
	reg := prometheus.NewRegistry()
	c, err := NewReplicaCollector(reg)
	require.NoError(t, err)

	// WHEN one successful and one failed replica finish
	c.ReplicaStarted(0)
	c.ReplicaStarted(1)
	c.ReplicaFinished(evaluator.ReplicaResult{
		Replica:  0,
		Trace:    trace.NewTrace(0, 0, 0),
		Summary:  trace.Summary{Requests: 10, Blocked: 3, BlockingProbability: 0.3},
		WallTime: 20 * time.Millisecond,
	})
	c.ReplicaFinished(evaluator.ReplicaResult{Replica: 1, Err: errors.New("boom"), WallTime: time.Millisecond})

	// THEN counters, gauges and the histogram reflect both
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Replicas.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Replicas.WithLabelValues("failed")))
	assert.Equal(t, 0.3, testutil.ToFloat64(c.BlockingProbability.WithLabelValues("0")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.Requests.WithLabelValues("accepted")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.Requests.WithLabelValues("blocked")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.InFlight))
	assert.Equal(t, uint64(2), histogramSampleCount(t, reg, "rsa_replica_duration_seconds"))
	assert.Equal(t, 1, testutil.CollectAndCount(c.BlockingProbability))
}

func TestReplicaCollector_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewReplicaCollector(reg)
	require.NoError(t, err)
	second, err := NewReplicaCollector(reg)
	require.NoError(t, err)

	second.Replicas.WithLabelValues("ok").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(first.Replicas.WithLabelValues("ok")))
}

func TestReplicaCollector_IncompatibleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(prometheus.NewGauge(prometheus.GaugeOpts{Name: "rsa_replicas_total", Help: "clash"})))
	_, err := NewReplicaCollector(reg)
	assert.Error(t, err)
}

func TestReplicaCollector_NilSafe(t *testing.T) {
	var c *ReplicaCollector
	c.ReplicaStarted(0)
	c.ReplicaFinished(evaluator.ReplicaResult{})
	assert.NoError(t, c.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestReplicaCollector_WriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewReplicaCollector(reg)
	require.NoError(t, err)
	c.ReplicaFinished(evaluator.ReplicaResult{Replica: 2, Trace: trace.NewTrace(2, 0, 0), Summary: trace.Summary{Requests: 4, Blocked: 1, BlockingProbability: 0.25}})

	path := filepath.Join(t.TempDir(), "rsa.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `rsa_replica_blocking_probability{replica="2"} 0.25`)
	assert.Contains(t, string(data), `rsa_replicas_total{status="ok"} 1`)
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	require.NoError(t, err)
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if h := histogram(m); h != nil {
				return h.GetSampleCount()
			}
		}
	}
	return 0
}

func histogram(m *dto.Metric) *dto.Histogram {
	return m.GetHistogram()
}
