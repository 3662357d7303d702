// Package metrics exposes Prometheus instruments for summary computation,
// reminder runs and the HTTP surface. A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "costwatch"

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeFailed   = "failed"
)

// Metrics holds all application metrics.
type Metrics struct {
	SummaryRequestsTotal *prometheus.CounterVec
	SummaryDuration      prometheus.Histogram

	ReminderRunsTotal         *prometheus.CounterVec
	ReminderRunDuration       prometheus.Histogram
	ReminderBatchesTotal      prometheus.Counter
	ReminderOrgsTotal         *prometheus.CounterVec
	ReminderObligationsTotal  *prometheus.CounterVec
	ReminderDeliveryFailTotal prometheus.Counter

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RateLimitedTotal    prometheus.Counter
}

// Default Buckets
var (
	DefaultSummaryBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1}
	DefaultRunBuckets     = []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300}
)

// New registers all metrics with reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SummaryRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_requests_total",
			Help:      "Organization summaries computed, by outcome.",
		}, []string{"outcome"}),
		SummaryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "summary_duration_seconds",
			Help:      "Time to read and aggregate one organization.",
			Buckets:   DefaultSummaryBuckets,
		}),
		ReminderRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_runs_total",
			Help:      "Reminder runs, by outcome.",
		}, []string{"outcome"}),
		ReminderRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reminder_run_duration_seconds",
			Help:      "Wall time of one reminder run.",
			Buckets:   DefaultRunBuckets,
		}),
		ReminderBatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_batches_total",
			Help:      "Notification batches handed to the notifier.",
		}),
		ReminderOrgsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_organizations_total",
			Help:      "Organizations visited by reminder runs, by outcome.",
		}, []string{"outcome"}),
		ReminderObligationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_obligations_total",
			Help:      "Obligations matched by reminder windows, by kind.",
		}, []string{"kind"}),
		ReminderDeliveryFailTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_delivery_failures_total",
			Help:      "Members skipped because resolution or delivery failed.",
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, by method and status code.",
		}, []string{"method", "code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency, by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.SummaryRequestsTotal,
			m.SummaryDuration,
			m.ReminderRunsTotal,
			m.ReminderRunDuration,
			m.ReminderBatchesTotal,
			m.ReminderOrgsTotal,
			m.ReminderObligationsTotal,
			m.ReminderDeliveryFailTotal,
			m.HTTPRequestsTotal,
			m.HTTPRequestDuration,
			m.RateLimitedTotal,
		)
	}
	return m
}

func (m *Metrics) ObserveSummary(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.SummaryRequestsTotal.WithLabelValues(outcome).Inc()
	m.SummaryDuration.Observe(took.Seconds())
}

func (m *Metrics) ObserveRun(outcome string, took time.Duration, invoices, bindings int) {
	if m == nil {
		return
	}
	m.ReminderRunsTotal.WithLabelValues(outcome).Inc()
	m.ReminderRunDuration.Observe(took.Seconds())
	m.ReminderObligationsTotal.WithLabelValues("invoice").Add(float64(invoices))
	m.ReminderObligationsTotal.WithLabelValues("binding").Add(float64(bindings))
}

func (m *Metrics) BatchSent() {
	if m == nil {
		return
	}
	m.ReminderBatchesTotal.Inc()
}

func (m *Metrics) DeliveryFailed() {
	if m == nil {
		return
	}
	m.ReminderDeliveryFailTotal.Inc()
}

func (m *Metrics) Organization(outcome string) {
	if m == nil {
		return
	}
	m.ReminderOrgsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveHTTP(method string, code int, took time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method).Observe(took.Seconds())
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}
