package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (display clients polling too fast).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 increases on /api/state.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// FMI open-data call rate per stored query. Watch for: error vs success ratio, not_found on observations.
	FMIAPICallsTotal *prometheus.CounterVec

	// FMI latency per request. Watch for: p95 > 2s (upstream degradation).
	FMIAPIDuration *prometheus.HistogramVec

	// FMI requests currently outstanding. Mirrors the store's loading counter.
	FMIRequestsInFlight prometheus.Gauge

	// Result cache lookups by outcome. Hit rate = hit/(hit+miss+stale+failed_evicted).
	ResultCacheRequestsTotal *prometheus.CounterVec

	// Refresh cycles by outcome (success, partial, failed).
	RefreshCyclesTotal *prometheus.CounterVec

	// Wall time of one refresh cycle.
	RefreshCycleDuration prometheus.Histogram

	// Errors appended to the cycle error list, by source branch and error category.
	RefreshErrorsTotal *prometheus.CounterVec

	// Writes dropped because a newer refresh cycle already completed. Watch for: sustained growth = overlapping slow cycles.
	StoreWritesDiscardedTotal prometheus.Counter

	// Circuit breaker state for the FMI client: 0 closed, 1 half-open, 2 open.
	CircuitBreakerState prometheus.Gauge

	// Rate limit denials on /api.
	RateLimitDeniedTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	FMIAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fmiApiCallsTotal",
			Help: "Total number of FMI open-data WFS calls",
		},
		[]string{"query", "status"},
	)
	FMIAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fmiApiDurationSeconds",
			Help:    "FMI open-data latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"query", "status"},
	)
	FMIRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fmiRequestsInFlight",
			Help: "Number of FMI requests currently outstanding",
		},
	)
	ResultCacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resultCacheRequestsTotal",
			Help: "Result cache lookups by cache and outcome (hit, miss, coalesced, stale, failed_evicted)",
		},
		[]string{"cache", "outcome"},
	)
	RefreshCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refreshCyclesTotal",
			Help: "Total number of refresh cycles by outcome",
		},
		[]string{"outcome"},
	)
	RefreshCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "refreshCycleDurationSeconds",
			Help:    "Refresh cycle wall time in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30},
		},
	)
	RefreshErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refreshErrorsTotal",
			Help: "Errors recorded by refresh cycles by source (metar, observations, forecasts) and category",
		},
		[]string{"source", "category"},
	)
	StoreWritesDiscardedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storeWritesDiscardedTotal",
			Help: "Store writes dropped because a newer refresh cycle had already completed",
		},
	)
	CircuitBreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "FMI client circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		FMIAPICallsTotal, FMIAPIDuration, FMIRequestsInFlight,
		ResultCacheRequestsTotal,
		RefreshCyclesTotal, RefreshCycleDuration, RefreshErrorsTotal,
		StoreWritesDiscardedTotal,
		CircuitBreakerState,
		RateLimitDeniedTotal,
	)
}

// FMIInFlightTracker adapts the fmiRequestsInFlight gauge to the client tracker interface.
type FMIInFlightTracker struct{}

func (FMIInFlightTracker) Inc() { FMIRequestsInFlight.Inc() }
func (FMIInFlightTracker) Dec() { FMIRequestsInFlight.Dec() }

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
