package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes recorded on ticketsync_runs_total.
const (
	OutcomeOK        = "ok"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeSkipped   = "skipped"
)

// Metrics holds the sync collectors. Create one per prometheus registry and share it
// between reconcilers. A nil *Metrics records nothing.
type Metrics struct {
	runs          *prometheus.CounterVec
	phaseFailures *prometheus.CounterVec
	runDuration   prometheus.Histogram
	mirrorWrites  *prometheus.CounterVec
	pushed        prometheus.Counter
}

// NewMetrics registers the sync collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticketsync_runs_total",
				Help: "sync runs by outcome",
			},
			[]string{"outcome"},
		),
		phaseFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticketsync_phase_failures_total",
				Help: "failed sync runs by phase",
			},
			[]string{"phase"},
		),
		runDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ticketsync_run_duration_seconds",
				Help:    "wall time of a sync run",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 12),
			},
		),
		mirrorWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticketsync_mirror_writes_total",
				Help: "mirror rows written by entity and operation",
			},
			[]string{"entity", "op"},
		),
		pushed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ticketsync_checkins_pushed_total",
				Help: "local check-ins redeemed at the registry",
			},
		),
	}
}

func (m *Metrics) observeRun(err error, d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
	switch {
	case err == nil:
		m.runs.WithLabelValues(OutcomeOK).Inc()
	case errors.Is(err, context.Canceled):
		m.runs.WithLabelValues(OutcomeCancelled).Inc()
	default:
		m.runs.WithLabelValues(OutcomeFailed).Inc()
	}
	if phase, ok := FailedPhase(err); ok {
		m.phaseFailures.WithLabelValues(string(phase)).Inc()
	}
}

func (m *Metrics) observeSkipped() {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(OutcomeSkipped).Inc()
}

func (m *Metrics) addWrites(entity string, c Counts) {
	if m == nil {
		return
	}
	if c.Inserted > 0 {
		m.mirrorWrites.WithLabelValues(entity, "insert").Add(float64(c.Inserted))
	}
	if c.Updated > 0 {
		m.mirrorWrites.WithLabelValues(entity, "update").Add(float64(c.Updated))
	}
	if c.Deleted > 0 {
		m.mirrorWrites.WithLabelValues(entity, "delete").Add(float64(c.Deleted))
	}
}

func (m *Metrics) addPushed(n int) {
	if m == nil || n == 0 {
		return
	}
	m.pushed.Add(float64(n))
}
