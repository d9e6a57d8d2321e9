package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fdezr/frontdesk/internal/booking"
	"github.com/fdezr/frontdesk/internal/calendar"
	"github.com/fdezr/frontdesk/internal/conversation"
	"github.com/fdezr/frontdesk/internal/notify"
	"github.com/fdezr/frontdesk/internal/store"
	"github.com/fdezr/frontdesk/internal/tenant"
)

func newTestService(cal *calendar.Mock, mail *notify.Mock) (*Service, *store.InMemoryAppointmentStore) {
	reg := tenant.NewInMemoryRegistry(tenant.Tenant{
		ID:         "consulate",
		Name:       "Consulate",
		Active:     true,
		TimeZone:   "UTC",
		AdminEmail: "admin@consulate.example",
	})
	appts := store.NewInMemoryAppointmentStore()
	return NewService(reg, cal, appts, mail, zap.NewNop(), nil, 30*time.Minute, 5*time.Second), appts
}

func testFields() map[string]string {
	return map[string]string{
		"name":  "Ana Lopez",
		"email": "ana@example.com",
		"phone": "+15551234567",
	}
}

func futureSlot() conversation.Slot {
	start := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Hour)
	return conversation.Slot{
		Start:    start,
		End:      start.Add(30 * time.Minute),
		TimeZone: "UTC",
		Display:  start.Format("Monday, January 2 at 03:04 PM"),
	}
}

func TestListDaysUnknownTenant(t *testing.T) {
	svc, _ := newTestService(calendar.NewMock(), &notify.Mock{})
	if _, err := svc.ListDays(context.Background(), "nope", 7); !errors.Is(err, tenant.ErrNotFound) {
		t.Fatalf("err = %v, want tenant.ErrNotFound", err)
	}
}

func TestListDaysReturnsAvailability(t *testing.T) {
	svc, _ := newTestService(calendar.NewMock(), &notify.Mock{})
	days, err := svc.ListDays(context.Background(), "consulate", 7)
	if err != nil {
		t.Fatalf("ListDays: %v", err)
	}
	if len(days) == 0 {
		t.Fatal("expected at least one available day on an empty calendar")
	}
	for _, d := range days {
		if d.SlotCount == 0 {
			t.Fatalf("day %s has zero slots", d.Date)
		}
	}
}

func TestBookCreatesEventAndNotifies(t *testing.T) {
	cal := calendar.NewMock()
	mail := &notify.Mock{}
	svc, appts := newTestService(cal, mail)

	res, err := svc.Book(context.Background(), "consulate", "sess-1", futureSlot(), testFields())
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if !res.Success || res.AppointmentID == "" {
		t.Fatalf("res = %+v", res)
	}
	if len(cal.Events) != 1 {
		t.Fatalf("calendar events = %d, want 1", len(cal.Events))
	}

	saved, err := appts.ByID(context.Background(), res.AppointmentID)
	if err != nil {
		t.Fatalf("appointment not persisted: %v", err)
	}
	if saved.Email != "ana@example.com" {
		t.Fatalf("saved email = %q", saved.Email)
	}
	if saved.SessionID != "sess-1" {
		t.Fatalf("saved session = %q, want sess-1", saved.SessionID)
	}

	msgs := mail.Messages()
	if len(msgs) != 2 {
		t.Fatalf("sent %d emails, want confirmation + admin copy", len(msgs))
	}
	if msgs[0].To != "ana@example.com" || msgs[1].To != "admin@consulate.example" {
		t.Fatalf("recipients = %s, %s", msgs[0].To, msgs[1].To)
	}
}

func TestBookConflictingSlotIsRejected(t *testing.T) {
	cal := calendar.NewMock()
	slot := futureSlot()
	cal.Busy = []conversation.BusyInterval{{Start: slot.Start, End: slot.End}}
	svc, _ := newTestService(cal, &notify.Mock{})

	res, err := svc.Book(context.Background(), "consulate", "sess-1", slot, testFields())
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if res.Success {
		t.Fatal("booking a busy slot must not succeed")
	}
	if res.Reason == "" {
		t.Fatal("rejection must carry a reason")
	}
	if len(cal.Events) != 0 {
		t.Fatal("no event may be created for a rejected booking")
	}
}

func TestBookNotificationFailureDoesNotFailBooking(t *testing.T) {
	cal := calendar.NewMock()
	mail := &notify.Mock{Err: errors.New("smtp down")}
	svc, _ := newTestService(cal, mail)

	res, err := svc.Book(context.Background(), "consulate", "sess-1", futureSlot(), testFields())
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if !res.Success {
		t.Fatalf("res = %+v, notification failure must not fail the booking", res)
	}
}

func TestCancelAppointmentFreesSlot(t *testing.T) {
	cal := calendar.NewMock()
	mail := &notify.Mock{}
	svc, _ := newTestService(cal, mail)
	ctx := context.Background()
	slot := futureSlot()

	res, err := svc.Book(ctx, "consulate", "sess-1", slot, testFields())
	if err != nil || !res.Success {
		t.Fatalf("Book: res=%+v err=%v", res, err)
	}

	if err := svc.CancelAppointment(ctx, res.AppointmentID); err != nil {
		t.Fatalf("CancelAppointment: %v", err)
	}
	if len(cal.Events) != 0 {
		t.Fatalf("calendar still holds %d events", len(cal.Events))
	}

	// The slot is free again after cancellation.
	res, err = svc.Book(ctx, "consulate", "sess-1", slot, testFields())
	if err != nil || !res.Success {
		t.Fatalf("rebook after cancel: res=%+v err=%v", res, err)
	}

	if err := svc.CancelAppointment(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("cancel unknown err = %v, want store.ErrNotFound", err)
	}
}

func TestRenderSignalLocalized(t *testing.T) {
	st := conversation.New("s", "consulate")
	st.OfferedDays = []conversation.Day{
		{Date: "2025-03-03", DisplayEN: "Monday, March 3", DisplayES: "Lunes, 3 de marzo"},
	}

	en := RenderSignal(booking.Outcome{Signal: booking.SignalDaysOffered}, st, "en")
	if !strings.Contains(en, "Monday, March 3") {
		t.Fatalf("en message = %q", en)
	}
	es := RenderSignal(booking.Outcome{Signal: booking.SignalDaysOffered}, st, "es")
	if !strings.Contains(es, "Lunes, 3 de marzo") {
		t.Fatalf("es message = %q", es)
	}

	miss := RenderSignal(booking.Outcome{Signal: booking.SignalFieldsMissing, Missing: []string{"email", "phone"}}, st, "en")
	if !strings.Contains(miss, "email address and phone number") {
		t.Fatalf("missing-fields message = %q", miss)
	}
}
