package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fdezr/frontdesk/internal/availability"
	"github.com/fdezr/frontdesk/internal/booking"
	"github.com/fdezr/frontdesk/internal/calendar"
	"github.com/fdezr/frontdesk/internal/conversation"
	"github.com/fdezr/frontdesk/internal/notify"
	"github.com/fdezr/frontdesk/internal/observability"
	"github.com/fdezr/frontdesk/internal/store"
	"github.com/fdezr/frontdesk/internal/tenant"
)

// Window applied when a slot listing names no date. A dated request is
// scoped to that single day regardless.
const defaultSlotWindowDays = 7

// Service is the in-process booking gateway: it resolves the tenant, reads
// the calendar, runs the availability computation, and on booking success
// persists the appointment and sends notifications.
type Service struct {
	tenants      tenant.Registry
	cal          calendar.Client
	appts        store.AppointmentStore
	mail         notify.Sender
	log          *zap.Logger
	metrics      *observability.Metrics
	slotDuration time.Duration
	callTimeout  time.Duration
}

func NewService(
	tenants tenant.Registry,
	cal calendar.Client,
	appts store.AppointmentStore,
	mail notify.Sender,
	log *zap.Logger,
	metrics *observability.Metrics,
	slotDuration, callTimeout time.Duration,
) *Service {
	return &Service{
		tenants:      tenants,
		cal:          cal,
		appts:        appts,
		mail:         mail,
		log:          log,
		metrics:      metrics,
		slotDuration: slotDuration,
		callTimeout:  callTimeout,
	}
}

func (s *Service) window(t tenant.Tenant, windowDays int) (availability.Window, error) {
	loc, err := time.LoadLocation(t.TimeZone)
	if err != nil {
		return availability.Window{}, fmt.Errorf("load tenant zone %q: %w", t.TimeZone, err)
	}
	now := time.Now().In(loc)
	return availability.Window{
		Start:        now,
		End:          now.AddDate(0, 0, windowDays+1),
		SlotDuration: s.slotDuration,
		BusinessHours: availability.BusinessHours{
			Start: t.BusinessStart,
			End:   t.BusinessEnd,
		},
		Location: loc,
		Now:      now,
	}, nil
}

func (s *Service) ListDays(ctx context.Context, tenantID string, windowDays int) ([]conversation.Day, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	t, err := s.tenants.Lookup(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	w, err := s.window(t, windowDays)
	if err != nil {
		return nil, err
	}

	busy, err := s.cal.BusyIntervals(ctx, t.CalendarID, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("list busy intervals: %w", err)
	}

	computeStart := time.Now()
	days := availability.ComputeDays(busy, w, windowDays)
	s.observeCompute(computeStart)
	return days, nil
}

func (s *Service) observeCompute(start time.Time) {
	if s.metrics != nil {
		s.metrics.Window.Observe("compute_availability", float64(time.Since(start).Milliseconds()))
	}
}

func (s *Service) ListSlots(ctx context.Context, tenantID, date string, max int) ([]conversation.Slot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	t, err := s.tenants.Lookup(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	w, err := s.window(t, defaultSlotWindowDays)
	if err != nil {
		return nil, err
	}

	busy, err := s.cal.BusyIntervals(ctx, t.CalendarID, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("list busy intervals: %w", err)
	}

	computeStart := time.Now()
	var slots []conversation.Slot
	if date == "" {
		slots = availability.ComputeSlots(busy, w)
	} else {
		slots, err = availability.ComputeSlotsForDate(busy, w, date)
		if err != nil {
			return nil, err
		}
	}
	s.observeCompute(computeStart)
	if max > 0 && len(slots) > max {
		slots = slots[:max]
	}
	return slots, nil
}

func (s *Service) Book(ctx context.Context, tenantID, sessionID string, slot conversation.Slot, fields map[string]string) (booking.BookResult, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	t, err := s.tenants.Lookup(ctx, tenantID)
	if err != nil {
		return booking.BookResult{}, err
	}

	// Re-check the slot against the live calendar so two near-simultaneous
	// selections cannot both book it.
	busy, err := s.cal.BusyIntervals(ctx, t.CalendarID, slot.Start, slot.End)
	if err != nil {
		return booking.BookResult{}, fmt.Errorf("verify slot: %w", err)
	}
	for _, iv := range availability.MergeBusy(busy, slot.Start.Location()) {
		if slot.End.After(iv.Start) && slot.Start.Before(iv.End) {
			s.observeBooking(start, "conflict")
			return booking.BookResult{Success: false, Reason: booking.ReasonSlotTaken}, nil
		}
	}

	eventID, err := s.cal.CreateEvent(ctx, t.CalendarID, calendar.Event{
		Subject:       fmt.Sprintf("Appointment: %s", fields["name"]),
		Body:          fmt.Sprintf("Booked via assistant.\nName: %s\nEmail: %s\nPhone: %s", fields["name"], fields["email"], fields["phone"]),
		Start:         slot.Start,
		End:           slot.End,
		TimeZone:      slot.TimeZone,
		AttendeeName:  fields["name"],
		AttendeeEmail: fields["email"],
	})
	if err != nil {
		s.observeBooking(start, "error")
		return booking.BookResult{}, fmt.Errorf("create event: %w", err)
	}

	appt := store.Appointment{
		ID:        uuid.NewString(),
		TenantID:  t.ID,
		SessionID: sessionID,
		EventID:   eventID,
		Name:      fields["name"],
		Email:     fields["email"],
		Phone:     fields["phone"],
		SlotStart: slot.Start,
		SlotEnd:   slot.End,
		TimeZone:  slot.TimeZone,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.appts.Save(ctx, appt); err != nil {
		// The calendar event exists; the record is secondary.
		s.log.Warn("appointment record not saved",
			zap.String("tenant", t.ID),
			zap.String("event_id", eventID),
			zap.Error(err))
	}

	s.notifyBooked(ctx, t, appt, slot)
	s.observeBooking(start, "success")
	return booking.BookResult{Success: true, AppointmentID: appt.ID}, nil
}

// Appointments lists a tenant's most recent bookings, newest first.
func (s *Service) Appointments(ctx context.Context, tenantID string, limit int) ([]store.Appointment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	if _, err := s.tenants.Lookup(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.appts.ByTenant(ctx, tenantID, limit)
}

// Appointment fetches one booking record by id.
func (s *Service) Appointment(ctx context.Context, id string) (store.Appointment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return s.appts.ByID(ctx, id)
}

// CancelAppointment removes the calendar event behind a booking and notifies
// the attendee. The appointment record is kept for history.
func (s *Service) CancelAppointment(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	appt, err := s.appts.ByID(ctx, id)
	if err != nil {
		return err
	}
	t, err := s.tenants.Lookup(ctx, appt.TenantID)
	if err != nil {
		return err
	}

	if appt.EventID != "" {
		if err := s.cal.CancelEvent(ctx, t.CalendarID, appt.EventID); err != nil {
			return fmt.Errorf("cancel event: %w", err)
		}
	}

	if appt.Email != "" {
		msg := notify.Message{
			To:      appt.Email,
			Subject: fmt.Sprintf("%s: appointment cancelled", t.Name),
			Body:    fmt.Sprintf("Hello %s,\n\nYour appointment has been cancelled. Contact us if you would like to reschedule.", appt.Name),
		}
		if err := s.mail.Send(ctx, msg); err != nil {
			s.log.Warn("cancellation email failed", zap.String("tenant", t.ID), zap.Error(err))
		}
	}

	if s.metrics != nil {
		s.metrics.BookingOutcomes.WithLabelValues("cancelled").Inc()
	}
	return nil
}

func (s *Service) notifyBooked(ctx context.Context, t tenant.Tenant, appt store.Appointment, slot conversation.Slot) {
	if appt.Email != "" {
		msg := notify.Message{
			To:      appt.Email,
			Subject: fmt.Sprintf("%s: appointment confirmed", t.Name),
			Body:    fmt.Sprintf("Hello %s,\n\nYour appointment is confirmed for %s.\n\nSee you then!", appt.Name, slot.Display),
		}
		if err := s.mail.Send(ctx, msg); err != nil {
			s.log.Warn("confirmation email failed", zap.String("tenant", t.ID), zap.Error(err))
		}
	}
	if t.AdminEmail != "" {
		msg := notify.Message{
			To:      t.AdminEmail,
			Subject: fmt.Sprintf("New appointment: %s", appt.Name),
			Body:    fmt.Sprintf("New booking for %s.\nName: %s\nEmail: %s\nPhone: %s", slot.Display, appt.Name, appt.Email, appt.Phone),
		}
		if err := s.mail.Send(ctx, msg); err != nil {
			s.log.Warn("admin notification failed", zap.String("tenant", t.ID), zap.Error(err))
		}
	}
}

func (s *Service) observeBooking(start time.Time, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.BookingOutcomes.WithLabelValues(outcome).Inc()
	s.metrics.ObserveGatewayLatency(time.Since(start))
}
