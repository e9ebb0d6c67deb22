// Package metrics exposes Prometheus collectors for the assignment core and
// the HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cutroom-studio/cutroom-engine/pkg/models"
)

// Metrics owns a registry and the collectors recorded by services and middleware.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	transitions      *prometheus.CounterVec
	assignments      *prometheus.CounterVec
	quotaRejections  *prometheus.CounterVec
	staffUtilization *prometheus.GaugeVec

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates collectors on a fresh registry, including Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cutroom",
			Name:      "project_transitions_total",
			Help:      "Successful project status transitions.",
		}, []string{"from", "to"}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cutroom",
			Name:      "assignments_total",
			Help:      "Assignment attempts by outcome.",
		}, []string{"result"}),
		quotaRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cutroom",
			Name:      "quota_rejections_total",
			Help:      "Project creations or activations refused by plan entitlement.",
		}, []string{"plan"}),
		staffUtilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cutroom",
			Name:      "staff_utilization_percent",
			Help:      "Utilization of each staff member at the last workload read.",
		}, []string{"role", "staff_id"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.transitions,
		m.assignments,
		m.quotaRejections,
		m.staffUtilization,
		m.httpInFlight,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	)
	return m
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Transition counts one committed status change.
func (m *Metrics) Transition(from, to models.ProjectStatus) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

// Assignment counts one assignment attempt. result is "ok" or an error kind.
func (m *Metrics) Assignment(result string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(result).Inc()
}

// QuotaRejected counts a refusal under planID.
func (m *Metrics) QuotaRejected(planID string) {
	if m == nil {
		return
	}
	m.quotaRejections.WithLabelValues(planID).Inc()
}

// StaffUtilization records the utilization of one staff member.
func (m *Metrics) StaffUtilization(role models.Role, staffID uuid.UUID, pct float64) {
	if m == nil {
		return
	}
	m.staffUtilization.WithLabelValues(string(role), staffID.String()).Set(pct)
}

// Instrument wraps next with in-flight, count and latency collection. The
// path label is the matched route pattern so ids do not explode cardinality.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(sw.code)
		m.httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
