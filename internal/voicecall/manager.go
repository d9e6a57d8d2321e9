package voicecall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fdezr/frontdesk/internal/booking"
	"github.com/fdezr/frontdesk/internal/conversation"
	"github.com/fdezr/frontdesk/internal/gateway"
	"github.com/fdezr/frontdesk/internal/llm"
	"github.com/fdezr/frontdesk/internal/observability"
	"github.com/fdezr/frontdesk/internal/reliability"
	"github.com/fdezr/frontdesk/internal/tenant"
)

// ManagerConfig bounds the per-call loop behavior.
type ManagerConfig struct {
	Model             string
	WindowDays        int
	MaxSlots          int
	AcceptTimeout     time.Duration
	HangupSilence     time.Duration
	ReconnectAttempts int
	ReconnectBackoff  time.Duration
	SweepInterval     time.Duration
}

// Manager owns the registry of live voice calls and runs one supervised
// event loop per call.
type Manager struct {
	reg       *Registry
	transport Transport
	gw        booking.Gateway
	tenants   tenant.Registry
	log       *zap.Logger
	metrics   *observability.Metrics
	cfg       ManagerConfig
}

func NewManager(
	reg *Registry,
	transport Transport,
	gw booking.Gateway,
	tenants tenant.Registry,
	log *zap.Logger,
	metrics *observability.Metrics,
	cfg ManagerConfig,
) *Manager {
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = 3
	}
	if cfg.HangupSilence <= 0 {
		cfg.HangupSilence = 2 * time.Second
	}
	return &Manager{
		reg:       reg,
		transport: transport,
		gw:        gw,
		tenants:   tenants,
		log:       log,
		metrics:   metrics,
		cfg:       cfg,
	}
}

// Start launches the stale-call sweep. The manager stays usable until ctx is
// cancelled.
func (m *Manager) Start(ctx context.Context) {
	m.reg.SetRemoveHook(func(c *Call) {
		m.log.Warn("stale call removed by sweep",
			zap.String("call", c.ID),
			zap.Time("started_at", c.StartedAt))
		m.countEvent("stale_removed")
		if m.metrics != nil {
			m.metrics.ActiveCalls.Dec()
		}
	})
	m.reg.StartJanitor(ctx, m.cfg.SweepInterval)
}

// HandleIncomingCall reacts to an incoming-call webhook: registers the call,
// accepts the transport session, and starts the event loop. A duplicate
// webhook for a known call id returns ErrDuplicate and has no effect.
func (m *Manager) HandleIncomingCall(ctx context.Context, ev WebhookEvent, tenantID string) error {
	t, err := m.tenants.Lookup(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("resolve tenant %q: %w", tenantID, err)
	}

	call, err := m.reg.Insert(ev.Data.CallID, t.ID, ev.Data.SIP.From, t.DefaultLanguage)
	if err != nil {
		return err
	}
	m.countEvent("incoming")

	acceptCtx, cancel := context.WithTimeout(ctx, m.cfg.AcceptTimeout)
	defer cancel()
	if err := m.transport.Accept(acceptCtx, call.ID, AcceptConfig{
		Model:        m.cfg.Model,
		Instructions: buildInstructions(t),
		Voice:        t.Voice,
		Tools:        toolDefinitions(),
	}); err != nil {
		// No retry on accept failure: the caller redials.
		m.reg.Remove(call.ID)
		m.countEvent("accept_failed")
		return fmt.Errorf("accept call %s: %w", call.ID, err)
	}

	if err := m.reg.MarkActive(call.ID, call.ID); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.ActiveCalls.Inc()
	}
	m.countEvent("accepted")

	go m.runLoop(context.WithoutCancel(ctx), call.ID)
	return nil
}

// runLoop supervises the event stream for one call, reconnecting on
// transport drops up to the attempt budget.
func (m *Manager) runLoop(ctx context.Context, callID string) {
	log := m.log.With(zap.String("call", callID))
	loop := &callLoop{m: m, callID: callID, log: log}
	defer loop.end()

	attempts := 0
	for {
		stream, err := m.transport.Connect(ctx, callID)
		if err != nil {
			var hs *HandshakeStatusError
			if errors.As(err, &hs) && reliability.IsFatalHandshakeStatus(hs.Status) {
				log.Error("event stream rejected, not retrying", zap.Int("status", hs.Status))
				m.countEvent("connect_fatal")
				return
			}
			attempts++
			if attempts >= m.cfg.ReconnectAttempts {
				log.Error("reconnect budget exhausted", zap.Error(err))
				m.countEvent("reconnect_exhausted")
				return
			}
			log.Warn("event stream connect failed, retrying", zap.Int("attempt", attempts), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.cfg.ReconnectBackoff):
			}
			continue
		}

		handled := loop.events
		clean, err := loop.consume(ctx, stream)
		_ = stream.Close()
		if clean {
			return
		}
		// A stream that delivered events counts as a fresh connection:
		// the budget limits consecutive failures, not total drops.
		if loop.events > handled {
			attempts = 0
		}

		attempts++
		if attempts >= m.cfg.ReconnectAttempts {
			log.Error("reconnect budget exhausted", zap.Error(err))
			m.countEvent("reconnect_exhausted")
			return
		}
		log.Warn("event stream dropped, reconnecting", zap.Int("attempt", attempts), zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.cfg.ReconnectBackoff):
		}
	}
}

func (m *Manager) countEvent(event string) {
	if m.metrics != nil {
		m.metrics.CallEvents.WithLabelValues(event).Inc()
	}
}

// callLoop is the single consumer of one call's events. The hangup timer is
// owned here and never shared with another call.
type callLoop struct {
	m      *Manager
	callID string
	log    *zap.Logger
	hangup *time.Timer
	events int
}

// consume processes events until the stream drops or the session closes
// cleanly. The bool result reports a clean close.
func (l *callLoop) consume(ctx context.Context, stream EventStream) (bool, error) {
	for {
		raw, err := stream.Next(ctx)
		if err != nil {
			return false, err
		}

		ev, err := ParseEvent(raw)
		if errors.Is(err, ErrUnsupportedEvent) {
			continue
		}
		if err != nil {
			l.log.Warn("bad transport event", zap.Error(err))
			continue
		}
		l.events++

		switch ev := ev.(type) {
		case FunctionCallEvent:
			l.m.reg.Touch(l.callID)
			output := l.handleFunction(ctx, ev)
			// Always answer, then tell the model to continue: the caller
			// must hear a spoken response even on validation failure.
			if err := stream.Send(ctx, newFunctionResult(ev.CallID, output)); err != nil {
				return false, err
			}
			if err := stream.Send(ctx, newContinueSignal()); err != nil {
				return false, err
			}

		case SpeechStartedEvent:
			l.m.reg.Touch(l.callID)
			l.cancelHangup()

		case AudioDoneEvent:
			l.maybeArmHangup()

		case SessionClosedEvent:
			l.log.Info("session closed", zap.String("reason", ev.Reason))
			return true, nil

		case ErrorEvent:
			l.log.Warn("transport error event",
				zap.String("code", ev.Error.Code),
				zap.String("message", ev.Error.Message))
			l.m.countEvent("stream_error")
		}
	}
}

// maybeArmHangup arms the silence-hangup timer once the confirmation audio
// has fully finished playing. Text-ready never arms it.
func (l *callLoop) maybeArmHangup() {
	call, err := l.m.reg.Lookup(l.callID)
	if err != nil {
		return
	}
	if call.Conversation.BookingState != conversation.StateConfirmed || call.BookingConfirmedAt.IsZero() {
		return
	}

	l.cancelHangup()
	callID := l.callID
	l.hangup = time.AfterFunc(l.m.cfg.HangupSilence, func() {
		l.m.fireHangup(callID)
	})
	l.log.Info("hangup timer armed", zap.Duration("silence", l.m.cfg.HangupSilence))
}

// cancelHangup stops a pending timer. Safe to call when none is armed, and
// safe against a timer that is already firing: the fire path re-checks call
// liveness before acting.
func (l *callLoop) cancelHangup() {
	if l.hangup != nil {
		l.hangup.Stop()
		l.hangup = nil
	}
}

// fireHangup runs in the timer goroutine. Last writer wins: if the call
// resumed or ended since the timer was armed, it does nothing.
func (m *Manager) fireHangup(callID string) {
	if !m.reg.IsLive(callID) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.transport.Hangup(ctx, callID); err != nil {
		m.log.Warn("hangup failed", zap.String("call", callID), zap.Error(err))
	}
	if m.reg.Remove(callID) && m.metrics != nil {
		m.metrics.ActiveCalls.Dec()
	}
	m.countEvent("hangup")
}

func (l *callLoop) end() {
	l.cancelHangup()
	if l.m.reg.Remove(l.callID) && l.m.metrics != nil {
		l.m.metrics.ActiveCalls.Dec()
	}
	l.m.countEvent("ended")
}

type functionOutput struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func encodeOutput(success bool, message string) string {
	raw, _ := json.Marshal(functionOutput{Success: success, Message: message})
	return string(raw)
}

// handleFunction dispatches one function-call intent against the booking
// flow. Intents are enforced strictly in flow order; an out-of-order intent
// gets a structured error, never a crash.
func (l *callLoop) handleFunction(ctx context.Context, ev FunctionCallEvent) string {
	start := time.Now()
	call, err := l.m.reg.Lookup(l.callID)
	if err != nil {
		return encodeOutput(false, "This call has ended.")
	}
	conv := call.Conversation
	lang := conv.Language

	var out string
	result := "ok"
	switch ev.Name {
	case "detect_language":
		out = l.detectLanguage(conv, ev.Arguments)
	case "get_available_days":
		out = l.getAvailableDays(ctx, conv, lang)
	case "get_available_slots":
		out = l.getAvailableSlots(ctx, conv, ev.Arguments, lang)
	case "book_slot":
		out = l.bookSlot(ctx, conv, ev.Arguments, lang)
	default:
		result = "unknown"
		out = encodeOutput(false, fmt.Sprintf("Unknown function %q.", ev.Name))
	}

	if l.m.metrics != nil {
		l.m.metrics.FunctionCalls.WithLabelValues(ev.Name, result).Inc()
		l.m.metrics.Window.Observe("voice_function_total", float64(time.Since(start).Milliseconds()))
	}
	return out
}

// detectLanguage switches the call's result language. Later function
// results render in the detected language until it changes again.
func (l *callLoop) detectLanguage(conv *conversation.State, args string) string {
	var sel struct {
		Language string `json:"language"`
	}
	if err := json.Unmarshal([]byte(args), &sel); err != nil {
		return encodeOutput(false, "Unrecognized language.")
	}
	lang := strings.ToLower(strings.TrimSpace(sel.Language))
	if lang != "en" && lang != "es" {
		return encodeOutput(false, fmt.Sprintf("Unsupported language %q.", sel.Language))
	}
	conv.Language = lang
	if lang == "es" {
		return encodeOutput(true, "De acuerdo, continuamos en español.")
	}
	return encodeOutput(true, "Okay, continuing in English.")
}

func (l *callLoop) getAvailableDays(ctx context.Context, conv *conversation.State, lang string) string {
	if conv.BookingState == conversation.StateConfirmed {
		return encodeOutput(false, gateway.RenderSignal(booking.Outcome{Signal: booking.SignalAlreadyConfirmed}, conv, lang))
	}

	days, err := l.m.gw.ListDays(ctx, conv.TenantID, l.m.cfg.WindowDays)
	if err != nil {
		l.log.Warn("list days failed", zap.Error(err))
		return encodeOutput(false, gateway.RenderSignal(booking.Outcome{Signal: booking.SignalGatewayFailure}, conv, lang))
	}
	if len(days) == 0 {
		return encodeOutput(false, gateway.RenderSignal(booking.Outcome{Signal: booking.SignalNoDays}, conv, lang))
	}

	conv.OfferedDays = days
	conv.BookingState = conversation.StateAwaitingDay
	return encodeOutput(true, gateway.RenderSignal(booking.Outcome{Signal: booking.SignalDaysOffered}, conv, lang))
}

func (l *callLoop) getAvailableSlots(ctx context.Context, conv *conversation.State, args, lang string) string {
	if len(conv.OfferedDays) == 0 {
		return encodeOutput(false, "No days have been offered yet. Call get_available_days first.")
	}

	var sel struct {
		Day int `json:"day"`
	}
	if err := json.Unmarshal([]byte(args), &sel); err != nil || sel.Day < 1 || sel.Day > len(conv.OfferedDays) {
		return encodeOutput(false, gateway.RenderSignal(booking.Outcome{Signal: booking.SignalSelectionMismatch}, conv, lang))
	}
	day := conv.OfferedDays[sel.Day-1]

	slots, err := l.m.gw.ListSlots(ctx, conv.TenantID, day.Date, l.m.cfg.MaxSlots)
	if err != nil {
		l.log.Warn("list slots failed", zap.Error(err))
		return encodeOutput(false, gateway.RenderSignal(booking.Outcome{Signal: booking.SignalGatewayFailure}, conv, lang))
	}
	if len(slots) == 0 {
		return encodeOutput(false, gateway.RenderSignal(booking.Outcome{Signal: booking.SignalNoSlotsForDay}, conv, lang))
	}

	conv.SelectedDate = day.Date
	conv.OfferedSlots = slots
	conv.BookingState = conversation.StateAwaitingSlot
	return encodeOutput(true, gateway.RenderSignal(booking.Outcome{Signal: booking.SignalSlotsOffered}, conv, lang))
}

func (l *callLoop) bookSlot(ctx context.Context, conv *conversation.State, args, lang string) string {
	if conv.BookingState == conversation.StateConfirmed {
		return encodeOutput(false, gateway.RenderSignal(booking.Outcome{Signal: booking.SignalAlreadyConfirmed}, conv, lang))
	}
	if len(conv.OfferedSlots) == 0 {
		return encodeOutput(false, "No times have been offered yet. Call get_available_slots first.")
	}

	var sel struct {
		Slot  int    `json:"slot"`
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	}
	if err := json.Unmarshal([]byte(args), &sel); err != nil || sel.Slot < 1 || sel.Slot > len(conv.OfferedSlots) {
		return encodeOutput(false, gateway.RenderSignal(booking.Outcome{Signal: booking.SignalSelectionMismatch}, conv, lang))
	}
	conv.MergeFields(map[string]string{
		"name":  llm.CleanField("name", sel.Name),
		"email": llm.CleanField("email", sel.Email),
		"phone": llm.CleanField("phone", sel.Phone),
	})

	slot := conv.OfferedSlots[sel.Slot-1]
	res, err := l.m.gw.Book(ctx, conv.TenantID, conv.ID, slot, conv.CollectedFields)
	if err != nil {
		l.log.Warn("booking failed", zap.Error(err))
		return encodeOutput(false, gateway.RenderSignal(booking.Outcome{Signal: booking.SignalGatewayFailure}, conv, lang))
	}
	if !res.Success {
		return encodeOutput(false, gateway.RenderSignal(booking.Outcome{Signal: booking.SignalGatewayFailure, Reason: res.Reason}, conv, lang))
	}

	conv.OfferedDays = nil
	conv.OfferedSlots = nil
	conv.BookingState = conversation.StateConfirmed
	l.m.reg.MarkConfirmed(l.callID)
	if l.m.metrics != nil {
		l.m.metrics.BookingOutcomes.WithLabelValues("voice_success").Inc()
	}
	return encodeOutput(true, gateway.RenderSignal(booking.Outcome{Signal: booking.SignalConfirmed, AppointmentID: res.AppointmentID}, conv, lang))
}

func buildInstructions(t tenant.Tenant) string {
	if t.SystemPrompt != "" {
		return t.SystemPrompt
	}
	return fmt.Sprintf(
		"You are the phone assistant for %s. Help the caller book an appointment. "+
			"Collect their full name, email address, and phone number, then use "+
			"get_available_days, get_available_slots, and book_slot in that order. "+
			"Speak the caller's language, and call detect_language as soon as you "+
			"recognize it or whenever the caller switches.", t.Name)
}

func toolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Type:        "function",
			Name:        "detect_language",
			Description: "Record the language the caller is speaking.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"language": map[string]any{
						"type":        "string",
						"enum":        []string{"en", "es"},
						"description": "ISO 639-1 code of the caller's language",
					},
				},
				"required": []string{"language"},
			},
		},
		{
			Type:        "function",
			Name:        "get_available_days",
			Description: "List the days with open appointment slots.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Type:        "function",
			Name:        "get_available_slots",
			Description: "List the open times for one of the offered days.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"day": map[string]any{
						"type":        "integer",
						"description": "1-based index into the offered days",
					},
				},
				"required": []string{"day"},
			},
		},
		{
			Type:        "function",
			Name:        "book_slot",
			Description: "Book one of the offered times for the caller.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"slot": map[string]any{
						"type":        "integer",
						"description": "1-based index into the offered times",
					},
					"name":  map[string]any{"type": "string"},
					"email": map[string]any{"type": "string"},
					"phone": map[string]any{"type": "string"},
				},
				"required": []string{"slot", "name", "email"},
			},
		},
	}
}
