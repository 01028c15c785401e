package calendar

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemorySource is an in-process Source. It backs deployments without an
// external calendar and the provider's tests.
type MemorySource struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemorySource creates an empty in-memory calendar.
func NewMemorySource(seed ...Event) *MemorySource {
	return &MemorySource{events: seed}
}

var _ Source = (*MemorySource)(nil)

// Events returns events overlapping [from, to], ordered by start time.
func (m *MemorySource) Events(_ context.Context, from, to time.Time) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Event
	for _, ev := range m.events {
		if from.Before(ev.End) && ev.Start.Before(to) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// Create stores a new event.
func (m *MemorySource) Create(_ context.Context, ev Event) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return ev, nil
}
