package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func counterValue(f *dto.MetricFamily, labels map[string]string) float64 {
	for _, m := range f.GetMetric() {
		match := true
		for _, lp := range m.GetLabel() {
			if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
				match = false
			}
		}
		if match {
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordCompile(ctx, 3, time.Millisecond, nil)
	m.RecordTransition(ctx, "run_task", nil)
	m.RecordTransition(ctx, "run_task", errors.New("missing signer"))
	m.RecordTransition(ctx, "start", nil)
	m.RecordSubmit(ctx, "run_task", 20*time.Millisecond, nil)
	m.RecordDatumSize(ctx, "active", 180)

	families := gather(t, reg)

	require.Contains(t, families, "escrowflow_transitions_total")
	transitions := families["escrowflow_transitions_total"]
	assert.Equal(t, 1.0, counterValue(transitions, map[string]string{"transition": "run_task", "outcome": "ok"}))
	assert.Equal(t, 1.0, counterValue(transitions, map[string]string{"transition": "run_task", "outcome": "error"}))
	assert.Equal(t, 1.0, counterValue(transitions, map[string]string{"transition": "start", "outcome": "ok"}))

	assert.Equal(t, 1.0, counterValue(families["escrowflow_compiles_total"], map[string]string{"outcome": "ok"}))
	assert.Equal(t, 1.0, counterValue(families["escrowflow_submits_total"], map[string]string{"transition": "run_task"}))

	require.Contains(t, families, "escrowflow_datum_size_bytes")
	h := families["escrowflow_datum_size_bytes"].GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(1), h.GetSampleCount())
	assert.Equal(t, 180.0, h.GetSampleSum())
}

func TestPrometheusRecorder_DoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	_, err = NewPrometheusRecorder(reg)
	var already prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &already)
}
