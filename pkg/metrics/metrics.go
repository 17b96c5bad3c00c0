// Package metrics exposes the console backend counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "composer"

// Metrics groups every collector. A nil *Metrics records nothing, so the
// library packages work without a registry.
type Metrics struct {
	saves            *prometheus.CounterVec
	saveDuration     prometheus.Histogram
	validationErrors *prometheus.CounterVec
	polls            *prometheus.CounterVec
	activePollers    prometheus.Gauge
	openSessions     prometheus.Gauge
	checkpoints      *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entity_saves_total",
			Help:      "Entity saves by outcome category.",
		}, []string{"outcome"}),
		saveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "entity_save_duration_seconds",
			Help:      "Round trip of an entity save to the execution API.",
			Buckets:   prometheus.DefBuckets,
		}),
		validationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_errors_total",
			Help:      "Field and conversion errors found while validating drafts.",
		}, []string{"kind", "code"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trace_polls_total",
			Help:      "Trace refresh ticks by outcome.",
		}, []string{"outcome"}),
		activePollers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "trace_active_pollers",
			Help:      "Runs currently being polled.",
		}),
		openSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "editor_open_sessions",
			Help:      "Editing sessions held in memory.",
		}),
		checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_responses_total",
			Help:      "HITL checkpoint decisions sent to the executor.",
		}, []string{"status"}),
	}

	collectors := []prometheus.Collector{
		m.saves, m.saveDuration, m.validationErrors, m.polls, m.activePollers, m.openSessions, m.checkpoints,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) ObserveSave(outcome string, took time.Duration) {
	if m == nil {
		return
	}

	m.saves.WithLabelValues(outcome).Inc()
	m.saveDuration.Observe(took.Seconds())
}

func (m *Metrics) ValidationError(kind, code string) {
	if m == nil {
		return
	}

	m.validationErrors.WithLabelValues(kind, code).Inc()
}

// PollTick counts one poll; err nil is a success.
func (m *Metrics) PollTick(err error) {
	if m == nil {
		return
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}

	m.polls.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PollerStarted() {
	if m != nil {
		m.activePollers.Inc()
	}
}

func (m *Metrics) PollerStopped() {
	if m != nil {
		m.activePollers.Dec()
	}
}

func (m *Metrics) SetOpenSessions(n int) {
	if m != nil {
		m.openSessions.Set(float64(n))
	}
}

func (m *Metrics) CheckpointResponded(status string) {
	if m != nil {
		m.checkpoints.WithLabelValues(status).Inc()
	}
}
