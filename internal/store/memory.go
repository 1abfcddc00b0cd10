package store

import (
	"context"
	"sync"

	"github.com/gyaneshwarpardhi/markovflow/internal/alert"
	"github.com/gyaneshwarpardhi/markovflow/internal/event"
)

// Memory is a bounded in-memory Store. When the event cap is hit, the oldest
// events fall off; alerts keep their own, smaller cap.
type Memory struct {
	mu        sync.RWMutex
	events    []*event.Event
	alerts    []*alert.Alert
	total     int64
	maxEvents int
	maxAlerts int
}

// NewMemory creates a Memory store keeping at most maxEvents events and
// maxAlerts alerts (non-positive values fall back to defaults).
func NewMemory(maxEvents, maxAlerts int) *Memory {
	if maxEvents <= 0 {
		maxEvents = 100000
	}
	if maxAlerts <= 0 {
		maxAlerts = 1000
	}
	return &Memory{maxEvents: maxEvents, maxAlerts: maxAlerts}
}

func (m *Memory) AppendEvent(_ context.Context, ev *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	m.total++
	if len(m.events) > m.maxEvents {
		// Drop the oldest; copy to keep the backing array from pinning.
		trimmed := make([]*event.Event, m.maxEvents)
		copy(trimmed, m.events[len(m.events)-m.maxEvents:])
		m.events = trimmed
	}
	return nil
}

func (m *Memory) RecentEvents(_ context.Context, limit int) ([]*event.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.events) {
		limit = len(m.events)
	}
	out := make([]*event.Event, limit)
	for i := 0; i < limit; i++ {
		out[i] = m.events[len(m.events)-1-i]
	}
	return out, nil
}

func (m *Memory) CountEvents(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.total, nil
}

func (m *Memory) SaveAlert(_ context.Context, a *alert.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
	if len(m.alerts) > m.maxAlerts {
		trimmed := make([]*alert.Alert, m.maxAlerts)
		copy(trimmed, m.alerts[len(m.alerts)-m.maxAlerts:])
		m.alerts = trimmed
	}
	return nil
}

func (m *Memory) RecentAlerts(_ context.Context, limit int) ([]*alert.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.alerts) {
		limit = len(m.alerts)
	}
	out := make([]*alert.Alert, limit)
	for i := 0; i < limit; i++ {
		out[i] = m.alerts[len(m.alerts)-1-i]
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
