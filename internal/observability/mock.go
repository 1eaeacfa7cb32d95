package observability

import "time"

// MockMetricsRegistry is a no-op MetricsRegistry for tests.
type MockMetricsRegistry struct{}

func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string)                     {}
func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (m *MockMetricsRegistry) IncrementServeOutcome(outcome string)                                 {}
func (m *MockMetricsRegistry) IncrementEvent(eventType string)                                      {}
func (m *MockMetricsRegistry) IncrementCacheLookups(result string)                                  {}
func (m *MockMetricsRegistry) AddCacheInvalidations(n int)                                          {}
func (m *MockMetricsRegistry) IncrementRateLimitRequests(layer string)                              {}
func (m *MockMetricsRegistry) IncrementRateLimitHits(layer string)                                  {}
