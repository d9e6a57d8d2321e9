package booking

import (
	"context"

	"github.com/fdezr/frontdesk/internal/conversation"
	"github.com/fdezr/frontdesk/internal/selection"
)

// Signal describes what the latest turn did to the booking flow. Callers
// render signals into user-facing replies in the session language.
type Signal string

const (
	// SignalFieldsMissing means required contact fields are still missing.
	SignalFieldsMissing Signal = "fields_missing"
	// SignalDaysOffered means the flow advanced and days were offered.
	SignalDaysOffered Signal = "days_offered"
	// SignalNoDays means all required fields are present but the calendar
	// has no availability in the look-ahead window.
	SignalNoDays Signal = "no_days"
	// SignalSlotsOffered means a day was chosen and slots were offered.
	SignalSlotsOffered Signal = "slots_offered"
	// SignalNoSlotsForDay means the chosen day lost its availability.
	SignalNoSlotsForDay Signal = "no_slots_for_day"
	// SignalSelectionMismatch means the message did not resolve to an
	// offered option. The flow re-prompts without changing state.
	SignalSelectionMismatch Signal = "selection_mismatch"
	// SignalConfirmed means the appointment was created.
	SignalConfirmed Signal = "confirmed"
	// SignalAlreadyConfirmed means the flow finished on an earlier turn.
	SignalAlreadyConfirmed Signal = "already_confirmed"
	// SignalGatewayFailure means a calendar or booking call failed. State
	// stays on the pre-attempt step so the selection can be retried.
	SignalGatewayFailure Signal = "gateway_failure"
)

// ReasonSlotTaken is the rejection reason for a slot that was booked by a
// concurrent request between offer and selection.
const ReasonSlotTaken = "slot no longer available"

// BookResult is the gateway's answer to a booking attempt.
type BookResult struct {
	Success       bool   `json:"success"`
	AppointmentID string `json:"appointment_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// Gateway is the boundary through which the state machine reaches
// availability and appointment creation. Chat uses the in-process service,
// voice uses an HTTP client, both with identical behavior.
type Gateway interface {
	ListDays(ctx context.Context, tenantID string, windowDays int) ([]conversation.Day, error)
	ListSlots(ctx context.Context, tenantID, date string, max int) ([]conversation.Slot, error)
	Book(ctx context.Context, tenantID, sessionID string, slot conversation.Slot, fields map[string]string) (BookResult, error)
}

// Outcome is the result of advancing the flow by one turn.
type Outcome struct {
	Signal        Signal
	Missing       []string
	AppointmentID string
	Reason        string
}

// Machine drives a conversation through the booking flow. It mutates the
// passed state in place; the caller persists it afterwards.
type Machine struct {
	gw         Gateway
	windowDays int
	maxSlots   int
}

func NewMachine(gw Gateway, windowDays, maxSlots int) *Machine {
	return &Machine{gw: gw, windowDays: windowDays, maxSlots: maxSlots}
}

// Advance consumes one user turn. Required lists the tenant's required
// contact fields; message is the raw user text used for ordinal selection.
// Collected fields are never modified here, only read.
func (m *Machine) Advance(ctx context.Context, st *conversation.State, message string, required []string) Outcome {
	switch st.BookingState {
	case conversation.StateConfirmed:
		return Outcome{Signal: SignalAlreadyConfirmed}
	case conversation.StateAwaitingDay:
		return m.advanceDay(ctx, st, message)
	case conversation.StateAwaitingSlot:
		return m.advanceSlot(ctx, st, message)
	default:
		return m.advanceNone(ctx, st, required)
	}
}

func (m *Machine) advanceNone(ctx context.Context, st *conversation.State, required []string) Outcome {
	missing := st.MissingFields(required)
	if len(missing) > 0 {
		return Outcome{Signal: SignalFieldsMissing, Missing: missing}
	}

	days, err := m.gw.ListDays(ctx, st.TenantID, m.windowDays)
	if err != nil {
		return Outcome{Signal: SignalGatewayFailure, Reason: err.Error()}
	}
	if len(days) == 0 {
		// No state change: completion is re-checked on every later turn.
		return Outcome{Signal: SignalNoDays}
	}

	st.OfferedDays = days
	st.BookingState = conversation.StateAwaitingDay
	return Outcome{Signal: SignalDaysOffered}
}

func (m *Machine) advanceDay(ctx context.Context, st *conversation.State, message string) Outcome {
	n, ok := selection.ParseOrdinal(message, len(st.OfferedDays))
	if !ok {
		return Outcome{Signal: SignalSelectionMismatch}
	}
	day := st.OfferedDays[n-1]

	slots, err := m.gw.ListSlots(ctx, st.TenantID, day.Date, m.maxSlots)
	if err != nil {
		return Outcome{Signal: SignalGatewayFailure, Reason: err.Error()}
	}
	if len(slots) == 0 {
		return Outcome{Signal: SignalNoSlotsForDay}
	}

	st.SelectedDate = day.Date
	st.OfferedDays = nil
	st.OfferedSlots = slots
	st.BookingState = conversation.StateAwaitingSlot
	return Outcome{Signal: SignalSlotsOffered}
}

func (m *Machine) advanceSlot(ctx context.Context, st *conversation.State, message string) Outcome {
	n, ok := selection.ParseOrdinal(message, len(st.OfferedSlots))
	if !ok {
		return Outcome{Signal: SignalSelectionMismatch}
	}
	slot := st.OfferedSlots[n-1]

	res, err := m.gw.Book(ctx, st.TenantID, st.ID, slot, st.CollectedFields)
	if err != nil {
		return Outcome{Signal: SignalGatewayFailure, Reason: err.Error()}
	}
	if !res.Success {
		return Outcome{Signal: SignalGatewayFailure, Reason: res.Reason}
	}

	st.OfferedDays = nil
	st.OfferedSlots = nil
	st.BookingState = conversation.StateConfirmed
	return Outcome{Signal: SignalConfirmed, AppointmentID: res.AppointmentID}
}
