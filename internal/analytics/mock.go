package analytics

import (
	"context"
	"sync"
)

// MockSink records events in memory for tests.
type MockSink struct {
	mu     sync.Mutex
	Events []Event
}

// NewMockSink returns an empty MockSink.
func NewMockSink() *MockSink {
	return &MockSink{}
}

func (m *MockSink) RecordEvent(_ context.Context, e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, e)
}

// Recorded returns a copy of the captured events.
func (m *MockSink) Recorded() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.Events))
	copy(out, m.Events)
	return out
}
