package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics
)

// ModuleMetrics returns the lazily-initialised metrics registry used to record
// RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "splitledger",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "splitledger",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by module, method, and code.",
			}, []string{"module", "method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "splitledger",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
		}
		prometheus.MustRegister(moduleRegistry.requests, moduleRegistry.errors, moduleRegistry.latency)
	})
	return moduleRegistry
}

// ObserveRequest records one handled RPC request.
func (m *moduleMetrics) ObserveRequest(module, method, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// ObserveError records one failed RPC request with its JSON-RPC error code.
func (m *moduleMetrics) ObserveError(module, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(module, method, code).Inc()
}
