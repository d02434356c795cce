// Package metrics owns the Prometheus registry of the service. All recording
// methods are safe to call on a nil *Registry so tests can omit instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	loginAttempts   *prometheus.CounterVec
	auditEntries    *prometheus.CounterVec
	sweepChanges    *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	forwardDropped  prometheus.Counter
}

func New() *Registry {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "endpoint", "status"})

	loginAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "login_attempts_total",
		Help: "Login attempts by outcome",
	}, []string{"outcome"})

	auditEntries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_entries_total",
		Help: "Audit log entries written by action",
	}, []string{"action"})

	sweepChanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lifecycle_sweep_changes_total",
		Help: "Users transitioned by the lifecycle sweeps",
	}, []string{"sweep"})

	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sessions_active",
		Help: "Server-side sessions currently tracked",
	})

	forwardDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_forward_dropped_total",
		Help: "Audit records dropped because the forward queue was full",
	})

	registry.MustRegister(
		requestDuration, requestTotal, loginAttempts, auditEntries, sweepChanges, activeSessions, forwardDropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		loginAttempts:   loginAttempts,
		auditEntries:    auditEntries,
		sweepChanges:    sweepChanges,
		activeSessions:  activeSessions,
		forwardDropped:  forwardDropped,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *Registry) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *Registry) ObserveHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"method": method, "endpoint": endpoint, "status": strconv.Itoa(status)}
	m.requestDuration.With(labels).Observe(duration.Seconds())
	m.requestTotal.With(labels).Inc()
}

func (m *Registry) LoginAttempt(outcome string) {
	if m == nil {
		return
	}
	m.loginAttempts.WithLabelValues(outcome).Inc()
}

func (m *Registry) AuditEntry(action string) {
	if m == nil {
		return
	}
	m.auditEntries.WithLabelValues(action).Inc()
}

func (m *Registry) SweepChanges(sweep string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweepChanges.WithLabelValues(sweep).Add(float64(n))
}

func (m *Registry) SessionsActive(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

func (m *Registry) ForwardDropped() {
	if m == nil {
		return
	}
	m.forwardDropped.Inc()
}
