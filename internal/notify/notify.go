package notify

import "context"

// Message is a plain-text email notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers booking notifications. Failures are reported to the caller
// but never block a confirmed booking.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
