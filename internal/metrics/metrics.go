package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. A nil *Metrics records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	decisionsTotal      *prometheus.CounterVec
	escalationsTotal    *prometheus.CounterVec
	notificationsTotal  *prometheus.CounterVec
	staleConflictsTotal prometheus.Counter
	sweepDuration       prometheus.Histogram
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: reg,

		/* Engine metrics */
		decisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "approvals_decisions_total",
				Help: "Total number of submitted step decisions",
			},
			[]string{"decision", "result"},
		),
		staleConflictsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "approvals_stale_conflicts_total",
				Help: "Total number of transitions that lost a concurrent update",
			},
		),

		/* Escalation metrics */
		escalationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "approvals_escalations_total",
				Help: "Total number of escalations fired by the sweep",
			},
			[]string{"level"},
		),
		sweepDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "approvals_sweep_duration_seconds",
				Help:    "Escalation sweep duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
		),

		/* Notification metrics */
		notificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "approvals_notifications_total",
				Help: "Total number of notification dispatch attempts",
			},
			[]string{"kind", "result"},
		),

		/* HTTP metrics */
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "approvals_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "approvals_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordDecision(decision, result string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(decision, result).Inc()
}

func (m *Metrics) RecordStaleConflict() {
	if m == nil {
		return
	}
	m.staleConflictsTotal.Inc()
}

func (m *Metrics) RecordEscalation(level string) {
	if m == nil {
		return
	}
	m.escalationsTotal.WithLabelValues(level).Inc()
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordNotification(kind, result string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
