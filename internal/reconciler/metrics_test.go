package reconciler

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-events/ticketsync/internal/reconciler/reconcilertest"
	"github.com/aura-events/ticketsync/internal/registry"
)

func TestMetricsRecordRunsAndWrites(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	h := newHarness(t, WithMetrics(m))
	h.redactions.Consent("a@x.com")
	h.event.Orders = []registry.Order{
		reconcilertest.PaidOrder("ABC12", "a@x.com", reconcilertest.TicketPosition(1001, 42, "Ada", "a@x.com")),
	}

	require.NoError(t, h.run())
	require.NoError(t, h.run())
	h.event.Settings.AttendeeEmailsAsked = false
	require.Error(t, h.run())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.runs.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.phaseFailures.WithLabelValues(string(PhaseValidating))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mirrorWrites.WithLabelValues("ticket", "insert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mirrorWrites.WithLabelValues("item", "insert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mirrorWrites.WithLabelValues("event", "insert")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.mirrorWrites.WithLabelValues("ticket", "update")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.observeRun(nil, 0)
	m.observeSkipped()
	m.addWrites("ticket", Counts{Inserted: 1})
	m.addPushed(3)
}
