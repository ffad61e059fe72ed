// Package metrics exposes Prometheus collectors for session and HTTP activity.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result constants for metric labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metrics holds every collector the service emits. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	validations  *prometheus.CounterVec
	issued       prometheus.Counter
	revoked      *prometheus.CounterVec
	rotations    prometheus.Counter
	storeErrors  *prometheus.CounterVec
	roleChanges  *prometheus.CounterVec
	logins       *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge
}

// New creates and registers all collectors on a private registry, together
// with the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wallmag",
			Subsystem: "session",
			Name:      "validations_total",
			Help:      "Session validations by outcome.",
		}, []string{"outcome"}),
		issued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wallmag",
			Subsystem: "session",
			Name:      "issued_total",
			Help:      "Sessions issued.",
		}),
		revoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wallmag",
			Subsystem: "session",
			Name:      "revoked_total",
			Help:      "Sessions revoked by reason.",
		}, []string{"reason"}),
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wallmag",
			Subsystem: "session",
			Name:      "rotations_total",
			Help:      "Sessions rotated.",
		}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wallmag",
			Subsystem: "session",
			Name:      "store_errors_total",
			Help:      "Registry and credential store failures by class.",
		}, []string{"class"}),
		roleChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wallmag",
			Subsystem: "roles",
			Name:      "assignments_total",
			Help:      "Role assignment attempts by result.",
		}, []string{"result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wallmag",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Completed login callbacks by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wallmag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wallmag",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wallmag",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "In-flight HTTP requests.",
		}),
	}

	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.validations, m.issued, m.revoked, m.rotations, m.storeErrors,
		m.roleChanges, m.logins, m.httpRequests, m.httpDuration, m.httpInFlight,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Validation records the outcome of a session validation ("ok" or an error kind).
func (m *Metrics) Validation(outcome string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(outcome).Inc()
}

// Issued records a new session.
func (m *Metrics) Issued() {
	if m == nil {
		return
	}
	m.issued.Inc()
}

// Revoked records n revoked sessions.
func (m *Metrics) Revoked(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.revoked.WithLabelValues(reason).Add(float64(n))
}

// Rotated records a session rotation.
func (m *Metrics) Rotated() {
	if m == nil {
		return
	}
	m.rotations.Inc()
}

// StoreError records a failed store call.
func (m *Metrics) StoreError(err error) {
	if m == nil || err == nil {
		return
	}
	m.storeErrors.WithLabelValues(Classify(err)).Inc()
}

// RoleChange records a role assignment attempt.
func (m *Metrics) RoleChange(result string) {
	if m == nil {
		return
	}
	m.roleChanges.WithLabelValues(result).Inc()
}

// Login records the outcome of a login callback.
func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// ObserveHTTP records a finished request. route is the mux pattern, never the raw path.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// InFlight adjusts the in-flight request gauge by delta.
func (m *Metrics) InFlight(delta float64) {
	if m == nil {
		return
	}
	m.httpInFlight.Add(delta)
}

// Classify maps err onto a small fixed set of label values.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "unavailable"
	}
}
