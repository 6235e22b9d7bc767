package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate on the control surface.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent control-surface requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Provider call rate by status label. Watch for: error vs success ratio.
	WeatherAPICallsTotal *prometheus.CounterVec

	// Provider latency. Watch for: p95 > 2s (upstream degradation).
	WeatherAPIDuration *prometheus.HistogramVec

	// Fetch outcomes by result: cache_hit, success, error, fallback, superseded, rejected.
	FetchesTotal *prometheus.CounterVec

	// Failed fetches by error category (see client.CategorizeError).
	FetchErrorsTotal *prometheus.CounterVec

	// Cache lookups by result: hit, miss, stale, error.
	CacheLookupsTotal *prometheus.CounterVec

	// Cache write/clear failures by operation.
	CacheErrorsTotal *prometheus.CounterVec

	// Escalations into the fallback state. Watch for: any sustained rate = provider unavailable.
	FallbackEscalationsTotal prometheus.Counter

	// Current consecutive failure streak.
	ConsecutiveFailures prometheus.Gauge

	// Debounced calls superseded before firing. High ratio to fetches = healthy collapsing.
	DebounceCollapsedTotal prometheus.Counter

	// Cache warming runs, errors and duration.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Rate limit denials on the control surface.
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
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of weather provider calls",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "Weather provider latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	FetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchesTotal",
			Help: "Fetch engine outcomes by result",
		},
		[]string{"result"},
	)
	FetchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchErrorsTotal",
			Help: "Failed fetches by error category",
		},
		[]string{"category"},
	)
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheLookupsTotal",
			Help: "Cache lookups by result (hit, miss, stale, error)",
		},
		[]string{"result"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache operation failures by operation",
		},
		[]string{"operation"},
	)
	FallbackEscalationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fallbackEscalationsTotal",
			Help: "Failures that escalated the engine into the fallback state",
		},
	)
	ConsecutiveFailures = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "consecutiveFailures",
			Help: "Current streak of consecutive non-aborted fetch failures",
		},
	)
	DebounceCollapsedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "debounceCollapsedTotal",
			Help: "Debounced location changes superseded before firing",
		},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Total number of cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs with at least one failed location",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Cache warming duration in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30},
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
		WeatherAPICallsTotal, WeatherAPIDuration,
		FetchesTotal, FetchErrorsTotal,
		CacheLookupsTotal, CacheErrorsTotal,
		FallbackEscalationsTotal, ConsecutiveFailures, DebounceCollapsedTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		RateLimitDeniedTotal,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
