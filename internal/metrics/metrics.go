// Package metrics provides Prometheus-based metrics collection for sentinel.
// It tracks scan lifecycle events, poll session behavior (including stale
// responses discarded after cancellation), alert synchronization, and
// backend client request performance.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	// Namespace for all sentinel metrics
	namespace = "sentinel"

	// Subsystems
	subsystemScan   = "scan"
	subsystemPoll   = "poll"
	subsystemAlerts = "alerts"
	subsystemClient = "client"
)

// Metrics holds all Prometheus metric collectors.
type Metrics struct {
	// Scan metrics
	scansTotal   *prometheus.CounterVec
	scanDuration *prometheus.HistogramVec
	activeScans  prometheus.Gauge

	// Poll session metrics
	pollTicks      *prometheus.CounterVec
	staleDiscarded prometheus.Counter
	pollFatals     prometheus.Counter
	activeSessions prometheus.Gauge

	// Alert metrics
	alertsResolved     prometheus.Counter
	alertsCreated      prometheus.Counter
	alertNotifications prometheus.Counter

	// Backend client metrics
	clientRequests *prometheus.CounterVec
	clientDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a new metrics instance with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{registry: registry}

	m.scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "total",
			Help:      "Total number of scans started by type and final status",
		},
		[]string{"scan_type", "status"},
	)

	m.scanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "duration_seconds",
			Help:      "Backend-reported duration of completed scans in seconds",
			Buckets:   []float64{1.0, 5.0, 10.0, 30.0, 60.0, 300.0, 600.0, 1800.0},
		},
		[]string{"scan_type"},
	)

	m.activeScans = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "active",
			Help:      "Number of scans currently being polled",
		},
	)

	m.pollTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemPoll,
			Name:      "ticks_total",
			Help:      "Total number of status fetches by outcome",
		},
		[]string{"outcome"},
	)

	m.staleDiscarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemPoll,
			Name:      "stale_responses_discarded_total",
			Help:      "Responses that arrived after their poll session was cancelled",
		},
	)

	m.pollFatals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemPoll,
			Name:      "fatal_errors_total",
			Help:      "Poll sessions cancelled after exceeding the consecutive error bound",
		},
	)

	m.activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemPoll,
			Name:      "sessions_active",
			Help:      "Number of currently active poll sessions",
		},
	)

	m.alertsResolved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAlerts,
			Name:      "resolved_total",
			Help:      "Alerts resolved through the synchronizer",
		},
	)

	m.alertsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAlerts,
			Name:      "created_total",
			Help:      "Alerts created through the synchronizer",
		},
	)

	m.alertNotifications = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAlerts,
			Name:      "notifications_total",
			Help:      "Observer notification rounds emitted by the synchronizer",
		},
	)

	m.clientRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemClient,
			Name:      "requests_total",
			Help:      "Backend API requests by operation and status",
		},
		[]string{"operation", "status"},
	)

	m.clientDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemClient,
			Name:      "request_duration_seconds",
			Help:      "Backend API request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		},
		[]string{"operation"},
	)

	registry.MustRegister(
		m.scansTotal,
		m.scanDuration,
		m.activeScans,
		m.pollTicks,
		m.staleDiscarded,
		m.pollFatals,
		m.activeSessions,
		m.alertsResolved,
		m.alertsCreated,
		m.alertNotifications,
		m.clientRequests,
		m.clientDuration,
	)

	// Standard Go and process collectors for runtime visibility
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the Prometheus registry for HTTP exposition.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Scan metrics methods

// IncrementScansTotal increments the scan counter.
func (m *Metrics) IncrementScansTotal(scanType, status string) {
	m.scansTotal.WithLabelValues(scanType, status).Inc()
}

// RecordScanDuration records a completed scan's duration.
func (m *Metrics) RecordScanDuration(scanType string, duration time.Duration) {
	m.scanDuration.WithLabelValues(scanType).Observe(duration.Seconds())
}

// SetActiveScans sets the number of scans currently polled.
func (m *Metrics) SetActiveScans(count int) {
	m.activeScans.Set(float64(count))
}

// Poll session metrics methods

// IncrementPollTicks increments the poll tick counter for an outcome.
func (m *Metrics) IncrementPollTicks(outcome string) {
	m.pollTicks.WithLabelValues(outcome).Inc()
}

// IncrementStaleDiscarded counts a response discarded after cancellation.
func (m *Metrics) IncrementStaleDiscarded() {
	m.staleDiscarded.Inc()
}

// IncrementPollFatals counts a session that exceeded its error bound.
func (m *Metrics) IncrementPollFatals() {
	m.pollFatals.Inc()
}

// SessionStarted increments the active session gauge.
func (m *Metrics) SessionStarted() {
	m.activeSessions.Inc()
}

// SessionStopped decrements the active session gauge.
func (m *Metrics) SessionStopped() {
	m.activeSessions.Dec()
}

// Alert metrics methods

// IncrementAlertsResolved counts a successful resolve.
func (m *Metrics) IncrementAlertsResolved() {
	m.alertsResolved.Inc()
}

// IncrementAlertsCreated counts a successful create.
func (m *Metrics) IncrementAlertsCreated() {
	m.alertsCreated.Inc()
}

// IncrementAlertNotifications counts an observer notification round.
func (m *Metrics) IncrementAlertNotifications() {
	m.alertNotifications.Inc()
}

// Backend client metrics methods

// RecordClientRequest records a backend request by operation and status.
func (m *Metrics) RecordClientRequest(operation, status string, duration time.Duration) {
	m.clientRequests.WithLabelValues(operation, status).Inc()
	m.clientDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// Global instance for easy access
var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Global returns the global metrics instance.
func Global() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = New()
	})
	return globalMetrics
}

// Convenience functions using the global instance

// IncrementScansTotal increments the scan counter on the global instance.
func IncrementScansTotal(scanType, status string) {
	Global().IncrementScansTotal(scanType, status)
}

// RecordScanDuration records a scan duration on the global instance.
func RecordScanDuration(scanType string, duration time.Duration) {
	Global().RecordScanDuration(scanType, duration)
}

// IncrementStaleDiscarded counts a stale response on the global instance.
func IncrementStaleDiscarded() {
	Global().IncrementStaleDiscarded()
}

// IncrementPollTicks counts a poll tick on the global instance.
func IncrementPollTicks(outcome string) {
	Global().IncrementPollTicks(outcome)
}

// RecordClientRequest records a backend request on the global instance.
func RecordClientRequest(operation, status string, duration time.Duration) {
	Global().RecordClientRequest(operation, status, duration)
}
