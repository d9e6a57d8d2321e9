package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fdezr/frontdesk/internal/conversation"
)

type fakeGateway struct {
	days  []conversation.Day
	slots []conversation.Slot

	daysErr  error
	slotsErr error
	bookErr  error
	bookRes  BookResult

	bookCalls     int
	lastSlotsDate string
	lastSessionID string
}

func (f *fakeGateway) ListDays(_ context.Context, _ string, _ int) ([]conversation.Day, error) {
	return f.days, f.daysErr
}

func (f *fakeGateway) ListSlots(_ context.Context, _ string, date string, _ int) ([]conversation.Slot, error) {
	f.lastSlotsDate = date
	return f.slots, f.slotsErr
}

func (f *fakeGateway) Book(_ context.Context, _ string, sessionID string, _ conversation.Slot, _ map[string]string) (BookResult, error) {
	f.bookCalls++
	f.lastSessionID = sessionID
	return f.bookRes, f.bookErr
}

var (
	testDays = []conversation.Day{
		{Date: "2025-03-03", DisplayEN: "Monday, March 3", SlotCount: 4},
		{Date: "2025-03-04", DisplayEN: "Tuesday, March 4", SlotCount: 6},
		{Date: "2025-03-05", DisplayEN: "Wednesday, March 5", SlotCount: 2},
	}
	testSlots = []conversation.Slot{
		{Start: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC), Display: "9:00 AM"},
		{Start: time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC), Display: "9:30 AM"},
	}
	requiredFields = []string{"name", "email", "phone"}
)

func completeState() *conversation.State {
	st := conversation.New("sess", "consulate")
	st.CollectedFields = map[string]string{
		"name":  "Ana Lopez",
		"email": "ana@example.com",
		"phone": "+15551234567",
	}
	return st
}

func TestAdvanceMissingFieldsStaysNone(t *testing.T) {
	gw := &fakeGateway{days: testDays}
	m := NewMachine(gw, 7, 10)
	st := conversation.New("sess", "consulate")
	st.CollectedFields["name"] = "Ana"

	out := m.Advance(context.Background(), st, "hello", requiredFields)
	if out.Signal != SignalFieldsMissing {
		t.Fatalf("Signal = %s, want fields_missing", out.Signal)
	}
	if len(out.Missing) != 2 || out.Missing[0] != "email" || out.Missing[1] != "phone" {
		t.Fatalf("Missing = %v", out.Missing)
	}
	if st.BookingState != conversation.StateNone {
		t.Fatalf("state = %s, want none", st.BookingState)
	}
}

func TestAdvanceFieldsCompleteOffersDays(t *testing.T) {
	gw := &fakeGateway{days: testDays}
	m := NewMachine(gw, 7, 10)
	st := completeState()

	out := m.Advance(context.Background(), st, "I'd like an appointment", requiredFields)
	if out.Signal != SignalDaysOffered {
		t.Fatalf("Signal = %s, want days_offered", out.Signal)
	}
	if st.BookingState != conversation.StateAwaitingDay {
		t.Fatalf("state = %s, want awaiting_day", st.BookingState)
	}
	if len(st.OfferedDays) != 3 {
		t.Fatalf("OfferedDays = %d entries, want 3", len(st.OfferedDays))
	}
}

func TestAdvanceNoDaysStaysNone(t *testing.T) {
	gw := &fakeGateway{}
	m := NewMachine(gw, 7, 10)
	st := completeState()

	out := m.Advance(context.Background(), st, "book me", requiredFields)
	if out.Signal != SignalNoDays {
		t.Fatalf("Signal = %s, want no_days", out.Signal)
	}
	if st.BookingState != conversation.StateNone {
		t.Fatalf("state = %s, want none", st.BookingState)
	}
}

func TestAdvanceDaySelection(t *testing.T) {
	gw := &fakeGateway{slots: testSlots}
	m := NewMachine(gw, 7, 10)
	st := completeState()
	st.BookingState = conversation.StateAwaitingDay
	st.OfferedDays = testDays

	out := m.Advance(context.Background(), st, "the second one", requiredFields)
	if out.Signal != SignalSlotsOffered {
		t.Fatalf("Signal = %s, want slots_offered", out.Signal)
	}
	if st.SelectedDate != "2025-03-04" {
		t.Fatalf("SelectedDate = %s, want 2025-03-04", st.SelectedDate)
	}
	if gw.lastSlotsDate != "2025-03-04" {
		t.Fatalf("gateway queried date %s", gw.lastSlotsDate)
	}
	if st.BookingState != conversation.StateAwaitingSlot {
		t.Fatalf("state = %s, want awaiting_slot", st.BookingState)
	}
	if len(st.OfferedDays) != 0 {
		t.Fatal("offered days must be cleared once slots are offered")
	}
}

func TestAdvanceDaySelectionMismatch(t *testing.T) {
	gw := &fakeGateway{slots: testSlots}
	m := NewMachine(gw, 7, 10)
	st := completeState()
	st.BookingState = conversation.StateAwaitingDay
	st.OfferedDays = testDays

	for _, msg := range []string{"banana", "9", "next week sometime"} {
		out := m.Advance(context.Background(), st, msg, requiredFields)
		if out.Signal != SignalSelectionMismatch {
			t.Fatalf("Advance(%q) signal = %s, want selection_mismatch", msg, out.Signal)
		}
		if st.BookingState != conversation.StateAwaitingDay {
			t.Fatalf("state = %s, want awaiting_day", st.BookingState)
		}
	}
}

func TestAdvanceDayWithNoSlotsStaysAwaitingDay(t *testing.T) {
	gw := &fakeGateway{}
	m := NewMachine(gw, 7, 10)
	st := completeState()
	st.BookingState = conversation.StateAwaitingDay
	st.OfferedDays = testDays

	out := m.Advance(context.Background(), st, "1", requiredFields)
	if out.Signal != SignalNoSlotsForDay {
		t.Fatalf("Signal = %s, want no_slots_for_day", out.Signal)
	}
	if st.BookingState != conversation.StateAwaitingDay {
		t.Fatalf("state = %s, want awaiting_day", st.BookingState)
	}
	if st.SelectedDate != "" {
		t.Fatalf("SelectedDate = %s, want empty", st.SelectedDate)
	}
}

func TestAdvanceSlotSelectionConfirms(t *testing.T) {
	gw := &fakeGateway{bookRes: BookResult{Success: true, AppointmentID: "appt-1"}}
	m := NewMachine(gw, 7, 10)
	st := completeState()
	st.BookingState = conversation.StateAwaitingSlot
	st.OfferedSlots = testSlots

	out := m.Advance(context.Background(), st, "2", requiredFields)
	if out.Signal != SignalConfirmed {
		t.Fatalf("Signal = %s, want confirmed", out.Signal)
	}
	if out.AppointmentID != "appt-1" {
		t.Fatalf("AppointmentID = %s", out.AppointmentID)
	}
	if st.BookingState != conversation.StateConfirmed {
		t.Fatalf("state = %s, want confirmed", st.BookingState)
	}
	if len(st.OfferedDays) != 0 || len(st.OfferedSlots) != 0 {
		t.Fatal("offered lists not cleared after confirmation")
	}
	if gw.lastSessionID != "sess" {
		t.Fatalf("session id passed to gateway = %q, want sess", gw.lastSessionID)
	}
}

func TestAdvanceSlotGatewayFailureStaysAwaitingSlot(t *testing.T) {
	gw := &fakeGateway{bookErr: errors.New("calendar unavailable")}
	m := NewMachine(gw, 7, 10)
	st := completeState()
	st.BookingState = conversation.StateAwaitingSlot
	st.OfferedSlots = testSlots

	out := m.Advance(context.Background(), st, "1", requiredFields)
	if out.Signal != SignalGatewayFailure {
		t.Fatalf("Signal = %s, want gateway_failure", out.Signal)
	}
	if st.BookingState != conversation.StateAwaitingSlot {
		t.Fatalf("state = %s, want awaiting_slot", st.BookingState)
	}
	if len(st.OfferedSlots) != 2 {
		t.Fatal("offered slots must survive a failed booking attempt")
	}

	// The selection, not the whole flow, is retried.
	gw.bookErr = nil
	gw.bookRes = BookResult{Success: true, AppointmentID: "appt-2"}
	out = m.Advance(context.Background(), st, "1", requiredFields)
	if out.Signal != SignalConfirmed {
		t.Fatalf("retry signal = %s, want confirmed", out.Signal)
	}
}

func TestAdvanceRejectedBookingCarriesReason(t *testing.T) {
	gw := &fakeGateway{bookRes: BookResult{Success: false, Reason: "slot already taken"}}
	m := NewMachine(gw, 7, 10)
	st := completeState()
	st.BookingState = conversation.StateAwaitingSlot
	st.OfferedSlots = testSlots

	out := m.Advance(context.Background(), st, "1", requiredFields)
	if out.Signal != SignalGatewayFailure {
		t.Fatalf("Signal = %s, want gateway_failure", out.Signal)
	}
	if out.Reason != "slot already taken" {
		t.Fatalf("Reason = %q", out.Reason)
	}
}

func TestAdvanceConfirmedIsTerminal(t *testing.T) {
	gw := &fakeGateway{bookRes: BookResult{Success: true, AppointmentID: "appt-1"}}
	m := NewMachine(gw, 7, 10)
	st := completeState()
	st.BookingState = conversation.StateConfirmed

	out := m.Advance(context.Background(), st, "1", requiredFields)
	if out.Signal != SignalAlreadyConfirmed {
		t.Fatalf("Signal = %s, want already_confirmed", out.Signal)
	}
	if gw.bookCalls != 0 {
		t.Fatalf("bookCalls = %d, want 0", gw.bookCalls)
	}
}
