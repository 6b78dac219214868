package apifetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
)

func TestNewMetricsCollector(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewMetricsCollectorWithRegistry(registry)

	if collector == nil {
		t.Fatal("NewMetricsCollectorWithRegistry() returned nil")
	}
	if collector.requestsTotal == nil {
		t.Error("requestsTotal metric not initialized")
	}
	if collector.requestDuration == nil {
		t.Error("requestDuration metric not initialized")
	}
	if collector.requestsInFlight == nil {
		t.Error("requestsInFlight metric not initialized")
	}
	if collector.errorsTotal == nil {
		t.Error("errorsTotal metric not initialized")
	}
	if collector.circuitBreakerState == nil {
		t.Error("circuitBreakerState metric not initialized")
	}
	if collector.GetRegistry() != registry {
		t.Error("Registry not set correctly")
	}
}

func TestNilMetricsCollector(t *testing.T) {
	var collector *MetricsCollector

	collector.RecordRequestStart(MethodGet)
	collector.RecordRequestEnd(MethodGet, StateSuccess, time.Millisecond)
	collector.RecordError(newRequestError(KindHTTP, 500, "", nil))
	collector.RecordFilterStep(MethodGet)
	collector.RecordTransportAttempt("GET", "ok")
	collector.RecordCircuitBreakerState("default", gobreaker.StateOpen)
	collector.RecordDeduplicationHit("GET")

	if collector.GetRegistry() != nil {
		t.Error("Expected nil registry from nil collector")
	}
}

func TestRecordRequestLifecycle(t *testing.T) {
	collector := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())

	collector.RecordRequestStart(MethodPost)
	if got := testutil.ToFloat64(collector.requestsInFlight.WithLabelValues("POST")); got != 1 {
		t.Errorf("Expected 1 in flight, got %v", got)
	}

	collector.RecordRequestEnd(MethodPost, StateError, 150*time.Millisecond)
	if got := testutil.ToFloat64(collector.requestsInFlight.WithLabelValues("POST")); got != 0 {
		t.Errorf("Expected 0 in flight, got %v", got)
	}
	if got := testutil.ToFloat64(collector.requestsTotal.WithLabelValues("POST", "ERROR")); got != 1 {
		t.Errorf("Expected 1 finished request, got %v", got)
	}
}

func TestRecordCircuitBreakerState(t *testing.T) {
	collector := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())

	tests := []struct {
		state gobreaker.State
		want  float64
	}{
		{gobreaker.StateClosed, 0},
		{gobreaker.StateOpen, 1},
		{gobreaker.StateHalfOpen, 2},
	}
	for _, tt := range tests {
		collector.RecordCircuitBreakerState("default", tt.state)
		if got := testutil.ToFloat64(collector.circuitBreakerState.WithLabelValues("default")); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.state, tt.want, got)
		}
	}
}

func TestMetricsIntegration(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if _, err := w.Write([]byte(`{"ok":true}`)); err != nil {
			t.Fatalf(failedWriteResponseMsg, err)
		}
	}))
	defer server.Close()

	registry := prometheus.NewRegistry()
	collector := NewMetricsCollectorWithRegistry(registry)
	client := New(WithMetricsCollector(collector))

	ctx := context.Background()
	if _, err := Get(ctx, client, server.URL+"/ok", JSON[map[string]bool](), nil); err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	if _, err := Get(ctx, client, server.URL+"/fail", Text(), nil); err == nil {
		t.Fatal("Expected error for /fail")
	}
	_, err := Get(ctx, client, server.URL+"/ok", Text().Constraint(func(string) bool { return false }, nil), nil)
	if !errors.Is(err, ErrConstraint) {
		t.Fatalf("Expected constraint failure, got %v", err)
	}

	checks := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"success", collector.requestsTotal.WithLabelValues("GET", "SUCCESS"), 1},
		{"error", collector.requestsTotal.WithLabelValues("GET", "ERROR"), 2},
		{"http errors", collector.errorsTotal.WithLabelValues("HTTP", "502"), 1},
		{"filter errors", collector.errorsTotal.WithLabelValues("FILTER", "0"), 1},
		{"filter steps", collector.filterSteps.WithLabelValues("GET"), 3},
		{"ok attempts", collector.transportAttempts.WithLabelValues("GET", "ok"), 2},
		{"status attempts", collector.transportAttempts.WithLabelValues("GET", "status"), 1},
		{"in flight", collector.requestsInFlight.WithLabelValues("GET"), 0},
	}
	for _, c := range checks {
		if got := testutil.ToFloat64(c.c); got != c.want {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, got)
		}
	}

	if n := testutil.CollectAndCount(collector.requestDuration); n != 2 {
		t.Errorf("Expected 2 duration series, got %d", n)
	}
}
