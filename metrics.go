package apifetch

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// MetricsCollector provides Prometheus metrics for the request lifecycle and
// the HTTP transport. It is safe for concurrent use and every method is a
// no-op on a nil collector.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	errorsTotal *prometheus.CounterVec

	filterSteps *prometheus.CounterVec

	transportAttempts *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec

	deduplicationHits *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	mc := &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "apifetch_requests_total",
				Help: "Total number of finished requests by final state",
			},
			[]string{"method", "state"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apifetch_request_duration_seconds",
				Help:    "Duration of requests from start to final state in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "state"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "apifetch_requests_in_flight",
				Help: "Number of requests currently in flight",
			},
			[]string{"method"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "apifetch_errors_total",
				Help: "Total number of classified request errors",
			},
			[]string{"kind", "status_code"},
		),
		filterSteps: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "apifetch_filter_steps_total",
				Help: "Total number of response filter steps started",
			},
			[]string{"method"},
		),
		transportAttempts: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "apifetch_transport_attempts_total",
				Help: "Total number of HTTP round trips by outcome",
			},
			[]string{"method", "outcome"},
		),
		circuitBreakerState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "apifetch_circuit_breaker_state",
				Help: "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		deduplicationHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "apifetch_deduplication_hits_total",
				Help: "Total number of requests served by another in-flight request",
			},
			[]string{"method"},
		),
	}
	if reg, ok := registry.(*prometheus.Registry); ok {
		mc.registry = reg
	}

	return mc
}

// RecordRequestStart increments in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method Method) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(string(method)).Inc()
}

// RecordRequestEnd decrements in-flight gauge and records count and duration.
func (mc *MetricsCollector) RecordRequestEnd(method Method, state State, duration time.Duration) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(string(method)).Dec()
	mc.requestsTotal.WithLabelValues(string(method), state.String()).Inc()
	mc.requestDuration.WithLabelValues(string(method), state.String()).Observe(duration.Seconds())
}

// RecordError increments error counter by kind and status.
func (mc *MetricsCollector) RecordError(err *RequestError) {
	if mc == nil || err == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(string(err.Kind), strconv.Itoa(err.Status)).Inc()
}

// RecordFilterStep increments filter step counter.
func (mc *MetricsCollector) RecordFilterStep(method Method) {
	if mc == nil {
		return
	}

	mc.filterSteps.WithLabelValues(string(method)).Inc()
}

// RecordTransportAttempt counts one round trip; outcome is "ok", "status" or "error".
func (mc *MetricsCollector) RecordTransportAttempt(method, outcome string) {
	if mc == nil {
		return
	}

	mc.transportAttempts.WithLabelValues(method, outcome).Inc()
}

// RecordCircuitBreakerState sets gauge to breaker state.
func (mc *MetricsCollector) RecordCircuitBreakerState(name string, state gobreaker.State) {
	if mc == nil {
		return
	}

	var stateValue float64
	switch state {
	case gobreaker.StateClosed:
		stateValue = 0
	case gobreaker.StateOpen:
		stateValue = 1
	case gobreaker.StateHalfOpen:
		stateValue = 2
	}

	mc.circuitBreakerState.WithLabelValues(name).Set(stateValue)
}

// RecordDeduplicationHit increments de-dup hit counter.
func (mc *MetricsCollector) RecordDeduplicationHit(method string) {
	if mc == nil {
		return
	}

	mc.deduplicationHits.WithLabelValues(method).Inc()
}

// GetRegistry exposes the underlying prometheus registry, or nil when the
// collector was built on a registerer that is not a *prometheus.Registry.
func (mc *MetricsCollector) GetRegistry() *prometheus.Registry {
	if mc == nil {
		return nil
	}
	return mc.registry
}
