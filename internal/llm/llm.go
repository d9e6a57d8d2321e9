package llm

import (
	"context"

	"github.com/fdezr/frontdesk/internal/conversation"
)

// ReplyContext carries everything the responder needs to draft the next
// assistant message.
type ReplyContext struct {
	SystemPrompt  string
	Language      string
	BookingState  conversation.BookingState
	MissingFields []string
	OfferedDays   []conversation.Day
	OfferedSlots  []conversation.Slot
	Transcript    []conversation.Turn
}

// Responder drafts assistant replies.
type Responder interface {
	DraftReply(ctx context.Context, rc ReplyContext) (string, error)
}

// Extractor pulls contact fields out of the conversation so far.
type Extractor interface {
	ExtractFields(ctx context.Context, transcript []conversation.Turn, wanted []string) (map[string]string, error)
}
