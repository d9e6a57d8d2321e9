package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fdezr/frontdesk/internal/booking"
	"github.com/fdezr/frontdesk/internal/conversation"
	"github.com/fdezr/frontdesk/internal/gateway"
	"github.com/fdezr/frontdesk/internal/language"
	"github.com/fdezr/frontdesk/internal/llm"
	"github.com/fdezr/frontdesk/internal/observability"
	"github.com/fdezr/frontdesk/internal/store"
	"github.com/fdezr/frontdesk/internal/tenant"
)

// ErrValidation marks a malformed turn request.
var ErrValidation = errors.New("chat: invalid request")

// Request is one inbound chat turn.
type Request struct {
	TenantID  string `json:"tenantId"`
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
}

// Response is the assistant's answer plus the session's booking progress.
type Response struct {
	SessionID            string                    `json:"sessionId"`
	Reply                string                    `json:"reply"`
	BookingState         conversation.BookingState `json:"bookingState"`
	CollectedFields      map[string]string         `json:"collectedFields"`
	MissingFields        []string                  `json:"missingFields"`
	ConfirmedAppointment string                    `json:"confirmedAppointment,omitempty"`
}

// Service runs the chat side of the booking flow: one self-contained
// load-advance-persist cycle per turn.
type Service struct {
	sessions  store.SessionStore
	tenants   tenant.Registry
	machine   *booking.Machine
	responder llm.Responder
	extractor llm.Extractor
	log       *zap.Logger
	metrics   *observability.Metrics
}

func NewService(
	sessions store.SessionStore,
	tenants tenant.Registry,
	machine *booking.Machine,
	responder llm.Responder,
	extractor llm.Extractor,
	log *zap.Logger,
	metrics *observability.Metrics,
) *Service {
	return &Service{
		sessions:  sessions,
		tenants:   tenants,
		machine:   machine,
		responder: responder,
		extractor: extractor,
		log:       log,
		metrics:   metrics,
	}
}

// HandleTurn processes one chat message and returns the assistant reply.
func (s *Service) HandleTurn(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	message := strings.TrimSpace(req.Message)
	if req.TenantID == "" {
		return Response{}, fmt.Errorf("%w: tenantId is required", ErrValidation)
	}
	if message == "" {
		return Response{}, fmt.Errorf("%w: message is required", ErrValidation)
	}

	t, err := s.tenants.Lookup(ctx, req.TenantID)
	if err != nil {
		return Response{}, err
	}

	st, err := s.loadSession(ctx, req, t)
	if err != nil {
		return Response{}, err
	}
	firstTurn := len(st.Transcript) == 0
	log := s.log.With(zap.String("tenant", t.ID), zap.String("session", st.ID))

	st.Language = language.Resolve(st.Language, message)
	st.AppendTurn("user", message)

	s.extractInto(ctx, st, t, log)

	out := s.machine.Advance(ctx, st, message, t.RequiredFields)
	if out.Signal == booking.SignalGatewayFailure {
		log.Warn("booking gateway failure", zap.String("reason", out.Reason))
	}

	reply := s.draftReply(ctx, st, t, out, log)
	if firstTurn {
		if welcome := t.WelcomeMessages[st.Language]; welcome != "" {
			reply = welcome + " " + reply
		}
	}
	st.AppendTurn("assistant", reply)

	if err := s.sessions.Put(ctx, st); err != nil {
		return Response{}, fmt.Errorf("persist session: %w", err)
	}

	if s.metrics != nil {
		s.metrics.ChatTurns.WithLabelValues(t.ID, string(st.BookingState)).Inc()
		s.metrics.Window.ObserveIndicator(string(out.Signal))
		s.metrics.ObserveTurnLatency(time.Since(start))
	}

	return Response{
		SessionID:            st.ID,
		Reply:                reply,
		BookingState:         st.BookingState,
		CollectedFields:      st.CollectedFields,
		MissingFields:        st.MissingFields(t.RequiredFields),
		ConfirmedAppointment: out.AppointmentID,
	}, nil
}

func (s *Service) loadSession(ctx context.Context, req Request, t tenant.Tenant) (*conversation.State, error) {
	if req.SessionID == "" {
		return conversation.New(uuid.NewString(), t.ID), nil
	}
	st, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if st.TenantID != t.ID {
		return nil, store.ErrNotFound
	}
	return st, nil
}

// extractInto pulls still-missing contact fields from the transcript. Any
// extraction failure is logged and the turn continues without new fields.
func (s *Service) extractInto(ctx context.Context, st *conversation.State, t tenant.Tenant, log *zap.Logger) {
	wanted := st.MissingFields(t.RequiredFields)
	if len(wanted) == 0 {
		return
	}
	start := time.Now()
	fields, err := s.extractor.ExtractFields(ctx, st.Transcript, wanted)
	s.observeStage("extract_fields", start)
	if err != nil {
		log.Warn("field extraction failed", zap.Error(err))
		return
	}
	if added := st.MergeFields(fields); len(added) > 0 {
		log.Info("fields collected", zap.Strings("fields", added))
	}
}

func (s *Service) observeStage(stage string, start time.Time) {
	if s.metrics != nil {
		s.metrics.Window.Observe(stage, float64(time.Since(start).Milliseconds()))
	}
}

func (s *Service) draftReply(ctx context.Context, st *conversation.State, t tenant.Tenant, out booking.Outcome, log *zap.Logger) string {
	start := time.Now()
	defer s.observeStage("draft_reply", start)
	reply, err := s.responder.DraftReply(ctx, llm.ReplyContext{
		SystemPrompt:  t.SystemPrompt,
		Language:      st.Language,
		BookingState:  st.BookingState,
		MissingFields: out.Missing,
		OfferedDays:   st.OfferedDays,
		OfferedSlots:  st.OfferedSlots,
		Transcript:    st.Transcript,
	})
	if err == nil && reply != "" {
		return reply
	}
	if err != nil {
		log.Warn("reply drafting failed, using canned message", zap.Error(err))
	}
	return gateway.RenderSignal(out, st, st.Language)
}
