package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool

	// Namespace is the metrics namespace prefix (default: rxdoc).
	Namespace string
}

// Outcome labels for operations.
const (
	OutcomeCommitted       = "committed"
	OutcomeAborted         = "aborted"
	OutcomeInvalid         = "invalid"
	OutcomeConflict        = "conflict"
	OutcomePersistFailed   = "persist_failed"
	OutcomePostHookFailure = "post_hook_failed"
)

// Metrics records write pipeline activity on a private registry.
// All methods are safe on a disabled or nil *Metrics.
type Metrics struct {
	operations   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	hooksRun     *prometheus.CounterVec
	hookFailures *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector. A disabled config yields a no-op value.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return &Metrics{}
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "rxdoc"
	}

	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of write operations by outcome",
			},
			[]string{"collection", "operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of write operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"collection", "operation"},
		),
		hooksRun: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hooks_executed_total",
				Help:      "Total number of hook invocations",
			},
			[]string{"operation", "phase", "mode"},
		),
		hookFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hook_failures_total",
				Help:      "Total number of failed hook invocations",
			},
			[]string{"operation", "phase", "mode"},
		),
	}

	registry.MustRegister(m.operations, m.duration, m.hooksRun, m.hookFailures)
	return m
}

// Enabled reports whether m records anything.
func (m *Metrics) Enabled() bool {
	return m != nil && m.registry != nil
}

// RecordOperation records one finished write operation.
func (m *Metrics) RecordOperation(collection, operation, outcome string, d time.Duration) {
	if !m.Enabled() {
		return
	}
	m.operations.WithLabelValues(collection, operation, outcome).Inc()
	m.duration.WithLabelValues(collection, operation).Observe(d.Seconds())
}

// RecordHook records one hook invocation and whether it failed.
func (m *Metrics) RecordHook(operation, phase, mode string, failed bool) {
	if !m.Enabled() {
		return
	}
	m.hooksRun.WithLabelValues(operation, phase, mode).Inc()
	if failed {
		m.hookFailures.WithLabelValues(operation, phase, mode).Inc()
	}
}

// Registry exposes the private registry for gathering in tests. Nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.Enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
