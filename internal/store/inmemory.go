package store

import (
	"context"
	"sync"
	"time"

	"github.com/fdezr/frontdesk/internal/conversation"
)

// InMemorySessionStore is a simple in-process session store for local/dev use.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*conversation.State
}

func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]*conversation.State)}
}

func (s *InMemorySessionStore) Get(_ context.Context, id string) (*conversation.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := st.Clone()
	return cp, nil
}

func (s *InMemorySessionStore) Put(_ context.Context, state *conversation.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state.UpdatedAt = time.Now().UTC()
	s.sessions[state.ID] = state.Clone()
	return nil
}

func (s *InMemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *InMemorySessionStore) Close() error { return nil }

// InMemoryAppointmentStore keeps confirmed bookings in process memory.
type InMemoryAppointmentStore struct {
	mu    sync.RWMutex
	byID  map[string]Appointment
	order []string
}

func NewInMemoryAppointmentStore() *InMemoryAppointmentStore {
	return &InMemoryAppointmentStore{byID: make(map[string]Appointment)}
}

func (s *InMemoryAppointmentStore) Save(_ context.Context, appt Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[appt.ID]; !exists {
		s.order = append(s.order, appt.ID)
	}
	s.byID[appt.ID] = appt
	return nil
}

func (s *InMemoryAppointmentStore) ByID(_ context.Context, id string) (Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	appt, ok := s.byID[id]
	if !ok {
		return Appointment{}, ErrNotFound
	}
	return appt, nil
}

func (s *InMemoryAppointmentStore) ByTenant(_ context.Context, tenantID string, limit int) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Appointment, 0, limit)
	for i := len(s.order) - 1; i >= 0; i-- {
		appt := s.byID[s.order[i]]
		if appt.TenantID != tenantID {
			continue
		}
		out = append(out, appt)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryAppointmentStore) Close() error { return nil }
