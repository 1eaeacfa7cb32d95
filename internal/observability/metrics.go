package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bankads_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bankads_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// serve pipeline outcomes: served, cache_hit, fallback, no_ad, error
	ServeOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bankads_serve_outcomes_total",
			Help: "Serve pipeline terminal outcomes",
		},
		[]string{"outcome"},
	)

	// events recorded, labelled by type
	EventCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bankads_events_total",
			Help: "Total events recorded",
		},
		[]string{"type"},
	)

	// personalised cache lookups by result (hit, miss, skip)
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bankads_cache_lookups_total",
			Help: "Serve cache lookups by result",
		},
		[]string{"result"},
	)

	// cache keys removed by mutation-driven invalidation
	CacheInvalidations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bankads_cache_invalidated_keys_total",
			Help: "Cache keys deleted by ad mutations",
		},
	)

	// rate limit checks per layer (ip, apikey)
	RateLimitRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bankads_ratelimit_requests_total",
			Help: "Total rate limit checks per layer",
		},
		[]string{"layer"},
	)

	// rate limit denials per layer
	RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bankads_ratelimit_hits_total",
			Help: "Total rate limit denials per layer",
		},
		[]string{"layer"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		ServeOutcomes,
		EventCount,
		CacheLookups,
		CacheInvalidations,
		RateLimitRequests,
		RateLimitHits,
	)
}
