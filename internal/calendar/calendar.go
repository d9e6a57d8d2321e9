package calendar

import (
	"context"
	"time"

	"github.com/fdezr/frontdesk/internal/conversation"
)

// Event describes an appointment to place on a tenant calendar.
type Event struct {
	Subject       string
	Body          string
	Start         time.Time
	End           time.Time
	TimeZone      string
	AttendeeName  string
	AttendeeEmail string
}

// Client reads busy time and writes events on a tenant calendar.
type Client interface {
	BusyIntervals(ctx context.Context, calendarID string, start, end time.Time) ([]conversation.BusyInterval, error)
	CreateEvent(ctx context.Context, calendarID string, ev Event) (string, error)
	CancelEvent(ctx context.Context, calendarID, eventID string) error
}
