package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/dukex/composer/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()

	m, err := metrics.New(reg)
	require.NoError(t, err)

	m.ObserveSave("ok", 20*time.Millisecond)
	m.ObserveSave("conflict", 10*time.Millisecond)
	m.PollTick(nil)
	m.PollTick(errors.New("down"))
	m.PollTick(errors.New("down"))
	m.PollerStarted()
	m.PollerStarted()
	m.PollerStopped()
	m.SetOpenSessions(3)

	count, err := testutil.GatherAndCount(reg, "composer_entity_saves_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			switch {
			case metric.GetGauge() != nil:
				values[family.GetName()] = metric.GetGauge().GetValue()
			case metric.GetCounter() != nil && family.GetName() == "composer_trace_polls_total":
				for _, label := range metric.GetLabel() {
					values[family.GetName()+"/"+label.GetValue()] = metric.GetCounter().GetValue()
				}
			}
		}
	}

	assert.InDelta(t, 1.0, values["composer_trace_active_pollers"], 0)
	assert.InDelta(t, 3.0, values["composer_editor_open_sessions"], 0)
	assert.InDelta(t, 1.0, values["composer_trace_polls_total/ok"], 0)
	assert.InDelta(t, 2.0, values["composer_trace_polls_total/error"], 0)
}

func TestMetrics_DoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := metrics.New(reg)
	require.NoError(t, err)

	_, err = metrics.New(reg)
	assert.Error(t, err)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.ObserveSave("ok", time.Second)
		m.PollTick(nil)
		m.PollerStarted()
		m.SetOpenSessions(1)
		m.CheckpointResponded("APPROVED")
		m.ValidationError("field", "required")
	})
}
