package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics.
// Handlers and logic components receive it by injection so tests can run
// without the global Prometheus registry.
type MetricsRegistry interface {
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	IncrementServeOutcome(outcome string)
	IncrementEvent(eventType string)

	IncrementCacheLookups(result string)
	AddCacheInvalidations(n int)

	IncrementRateLimitRequests(layer string)
	IncrementRateLimitHits(layer string)
}

// PrometheusRegistry implements MetricsRegistry using the package-level
// Prometheus collectors.
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry.
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementServeOutcome(outcome string) {
	ServeOutcomes.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) IncrementEvent(eventType string) {
	EventCount.WithLabelValues(eventType).Inc()
}

func (r *PrometheusRegistry) IncrementCacheLookups(result string) {
	CacheLookups.WithLabelValues(result).Inc()
}

func (r *PrometheusRegistry) AddCacheInvalidations(n int) {
	CacheInvalidations.Add(float64(n))
}

func (r *PrometheusRegistry) IncrementRateLimitRequests(layer string) {
	RateLimitRequests.WithLabelValues(layer).Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitHits(layer string) {
	RateLimitHits.WithLabelValues(layer).Inc()
}
