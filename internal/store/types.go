package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fdezr/frontdesk/internal/conversation"
)

// ErrNotFound signals a missing session or appointment.
var ErrNotFound = errors.New("store: not found")

// decodeState strictly decodes a persisted conversation record. Unknown keys
// are an error so stray metadata cannot ride along in the session document.
func decodeState(raw []byte) (*conversation.State, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var st conversation.State
	if err := dec.Decode(&st); err != nil {
		return nil, err
	}
	return &st, nil
}

// SessionStore persists conversation state across turns.
type SessionStore interface {
	Get(ctx context.Context, id string) (*conversation.State, error)
	Put(ctx context.Context, state *conversation.State) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Appointment is a confirmed booking record.
type Appointment struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	SessionID string    `json:"session_id"`
	EventID   string    `json:"event_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	SlotStart time.Time `json:"slot_start"`
	SlotEnd   time.Time `json:"slot_end"`
	TimeZone  string    `json:"time_zone"`
	CreatedAt time.Time `json:"created_at"`
}

// AppointmentStore persists confirmed bookings.
type AppointmentStore interface {
	Save(ctx context.Context, appt Appointment) error
	ByID(ctx context.Context, id string) (Appointment, error)
	ByTenant(ctx context.Context, tenantID string, limit int) ([]Appointment, error)
	Close() error
}
