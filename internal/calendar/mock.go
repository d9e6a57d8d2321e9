package calendar

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fdezr/frontdesk/internal/conversation"
)

// Mock is an in-process calendar for tests and offline development.
type Mock struct {
	mu     sync.Mutex
	Busy   []conversation.BusyInterval
	Events map[string]Event

	BusyErr   error
	CreateErr error
}

func NewMock() *Mock {
	return &Mock{Events: make(map[string]Event)}
}

func (m *Mock) BusyIntervals(_ context.Context, _ string, start, end time.Time) ([]conversation.BusyInterval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BusyErr != nil {
		return nil, m.BusyErr
	}
	var out []conversation.BusyInterval
	for _, iv := range m.Busy {
		if iv.End.After(start) && iv.Start.Before(end) {
			out = append(out, iv)
		}
	}
	return out, nil
}

func (m *Mock) CreateEvent(_ context.Context, _ string, ev Event) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	id := uuid.NewString()
	m.Events[id] = ev
	m.Busy = append(m.Busy, conversation.BusyInterval{Start: ev.Start, End: ev.End})
	return id, nil
}

func (m *Mock) CancelEvent(_ context.Context, _ string, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.Events[eventID]
	if !ok {
		return nil
	}
	delete(m.Events, eventID)
	kept := m.Busy[:0]
	for _, iv := range m.Busy {
		if iv.Start.Equal(ev.Start) && iv.End.Equal(ev.End) {
			continue
		}
		kept = append(kept, iv)
	}
	m.Busy = kept
	return nil
}
