package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSummary(OutcomeOK, time.Millisecond)
		m.ObserveRun(OutcomeOK, time.Second, 1, 2)
		m.BatchSent()
		m.DeliveryFailed()
		m.Organization(OutcomeFailed)
		m.ObserveHTTP("GET", 200, time.Millisecond)
		m.RateLimited()
	})
}

func TestObserveRun(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRun(OutcomeOK, time.Second, 3, 1)
	m.ObserveRun(OutcomeFailed, time.Second, 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReminderRunsTotal.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReminderRunsTotal.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ReminderObligationsTotal.WithLabelValues("invoice")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReminderObligationsTotal.WithLabelValues("binding")))
}

func TestObserveHTTP(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveHTTP("POST", 401, time.Millisecond)
	m.RateLimited()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "401")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitedTotal))
}

func TestNewWithoutRegistry(t *testing.T) {
	m := New(nil)
	m.BatchSent()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReminderBatchesTotal))
}
