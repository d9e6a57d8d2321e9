package voicecall

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fdezr/frontdesk/internal/booking"
	"github.com/fdezr/frontdesk/internal/conversation"
	"github.com/fdezr/frontdesk/internal/tenant"
)

type fakeTransport struct {
	acceptErr   error
	connectErr  error
	acceptCalls atomic.Int32
	hangupCalls atomic.Int32
}

func (f *fakeTransport) Accept(_ context.Context, _ string, _ AcceptConfig) error {
	f.acceptCalls.Add(1)
	return f.acceptErr
}

func (f *fakeTransport) Connect(_ context.Context, _ string) (EventStream, error) {
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	return &fakeStream{events: make(chan []byte)}, nil
}

func (f *fakeTransport) Hangup(_ context.Context, _ string) error {
	f.hangupCalls.Add(1)
	return nil
}

type fakeStream struct {
	events chan []byte
	sent   [][]byte
}

func (s *fakeStream) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case raw, ok := <-s.events:
		if !ok {
			return nil, errors.New("stream closed")
		}
		return raw, nil
	}
}

func (s *fakeStream) Send(_ context.Context, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.sent = append(s.sent, raw)
	return nil
}

func (s *fakeStream) Close() error { return nil }

type fakeGateway struct {
	days  []conversation.Day
	slots []conversation.Slot

	bookRes       booking.BookResult
	bookErr       error
	bookCalls     int
	lastSessionID string
}

func (f *fakeGateway) ListDays(_ context.Context, _ string, _ int) ([]conversation.Day, error) {
	return f.days, nil
}

func (f *fakeGateway) ListSlots(_ context.Context, _ string, _ string, _ int) ([]conversation.Slot, error) {
	return f.slots, nil
}

func (f *fakeGateway) Book(_ context.Context, _ string, sessionID string, _ conversation.Slot, _ map[string]string) (booking.BookResult, error) {
	f.bookCalls++
	f.lastSessionID = sessionID
	return f.bookRes, f.bookErr
}

func newTestManager(tr Transport, gw booking.Gateway) *Manager {
	reg := NewRegistry(30 * time.Minute)
	tenants := tenant.NewInMemoryRegistry(tenant.Tenant{ID: "consulate", Name: "Consulate", Active: true})
	return NewManager(reg, tr, gw, tenants, zap.NewNop(), nil, ManagerConfig{
		WindowDays:        7,
		MaxSlots:          5,
		AcceptTimeout:     time.Second,
		HangupSilence:     20 * time.Millisecond,
		ReconnectAttempts: 3,
		ReconnectBackoff:  time.Millisecond,
	})
}

func incomingCall(id string) WebhookEvent {
	var ev WebhookEvent
	ev.Type = "realtime.call.incoming"
	ev.Data.CallID = id
	ev.Data.SIP.From = "+15550001111"
	return ev
}

func offeredDays() []conversation.Day {
	return []conversation.Day{
		{Date: "2025-03-03", DisplayEN: "Monday, March 3", SlotCount: 2},
		{Date: "2025-03-04", DisplayEN: "Tuesday, March 4", SlotCount: 2},
	}
}

func offeredSlots() []conversation.Slot {
	base := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	return []conversation.Slot{
		{Start: base, End: base.Add(30 * time.Minute), Display: "Monday, March 3 at 09:00 AM"},
		{Start: base.Add(30 * time.Minute), End: base.Add(time.Hour), Display: "Monday, March 3 at 09:30 AM"},
	}
}

// activeLoop registers an active call and returns its loop for driving
// function intents directly.
func activeLoop(t *testing.T, m *Manager, callID string) *callLoop {
	t.Helper()
	if _, err := m.reg.Insert(callID, "consulate", "", "en"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := m.reg.MarkActive(callID, callID); err != nil {
		t.Fatalf("MarkActive: %v", err)
	}
	return &callLoop{m: m, callID: callID, log: zap.NewNop()}
}

func decodeOutput(t *testing.T, raw string) functionOutput {
	t.Helper()
	var out functionOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("decode output %q: %v", raw, err)
	}
	return out
}

func TestHandleIncomingCallDuplicateSuppressed(t *testing.T) {
	tr := &fakeTransport{}
	m := newTestManager(tr, &fakeGateway{})
	ctx := context.Background()

	if err := m.HandleIncomingCall(ctx, incomingCall("c1"), "consulate"); err != nil {
		t.Fatalf("first webhook: %v", err)
	}
	if err := m.HandleIncomingCall(ctx, incomingCall("c1"), "consulate"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate webhook err = %v, want ErrDuplicate", err)
	}
	if tr.acceptCalls.Load() != 1 {
		t.Fatalf("accept calls = %d, want 1", tr.acceptCalls.Load())
	}
}

func TestHandleIncomingCallUnknownTenant(t *testing.T) {
	m := newTestManager(&fakeTransport{}, &fakeGateway{})
	err := m.HandleIncomingCall(context.Background(), incomingCall("c1"), "ghost")
	if !errors.Is(err, tenant.ErrNotFound) {
		t.Fatalf("err = %v, want tenant.ErrNotFound", err)
	}
}

func TestHandleIncomingCallAcceptFailureRemovesCall(t *testing.T) {
	tr := &fakeTransport{acceptErr: errors.New("accept rejected")}
	m := newTestManager(tr, &fakeGateway{})

	if err := m.HandleIncomingCall(context.Background(), incomingCall("c1"), "consulate"); err == nil {
		t.Fatal("accept failure must surface an error")
	}
	if _, err := m.reg.Lookup("c1"); !errors.Is(err, ErrCallNotFound) {
		t.Fatalf("call still registered after accept failure: %v", err)
	}

	// The caller redials: the same id must be accepted fresh.
	tr.acceptErr = nil
	if err := m.HandleIncomingCall(context.Background(), incomingCall("c1"), "consulate"); err != nil {
		t.Fatalf("redial: %v", err)
	}
}

func TestFunctionIntentOrderEnforced(t *testing.T) {
	gw := &fakeGateway{days: offeredDays(), slots: offeredSlots()}
	m := newTestManager(&fakeTransport{}, gw)
	l := activeLoop(t, m, "c1")
	ctx := context.Background()

	out := decodeOutput(t, l.handleFunction(ctx, FunctionCallEvent{CallID: "f1", Name: "book_slot", Arguments: `{"slot":1}`}))
	if out.Success {
		t.Fatal("book before any offer must fail")
	}
	if gw.bookCalls != 0 {
		t.Fatalf("bookCalls = %d, want 0", gw.bookCalls)
	}

	out = decodeOutput(t, l.handleFunction(ctx, FunctionCallEvent{CallID: "f2", Name: "get_available_slots", Arguments: `{"day":1}`}))
	if out.Success {
		t.Fatal("slots before days must fail")
	}

	out = decodeOutput(t, l.handleFunction(ctx, FunctionCallEvent{CallID: "f3", Name: "no_such_function", Arguments: `{}`}))
	if out.Success {
		t.Fatal("unknown function must fail")
	}
	if out.Message == "" {
		t.Fatal("every rejection must carry a spoken message")
	}
}

func TestFunctionFlowBooksAppointment(t *testing.T) {
	gw := &fakeGateway{
		days:    offeredDays(),
		slots:   offeredSlots(),
		bookRes: booking.BookResult{Success: true, AppointmentID: "appt-7"},
	}
	m := newTestManager(&fakeTransport{}, gw)
	l := activeLoop(t, m, "c1")
	ctx := context.Background()

	out := decodeOutput(t, l.handleFunction(ctx, FunctionCallEvent{CallID: "f1", Name: "get_available_days", Arguments: `{}`}))
	if !out.Success {
		t.Fatalf("get_available_days failed: %s", out.Message)
	}

	out = decodeOutput(t, l.handleFunction(ctx, FunctionCallEvent{CallID: "f2", Name: "get_available_slots", Arguments: `{"day":2}`}))
	if !out.Success {
		t.Fatalf("get_available_slots failed: %s", out.Message)
	}

	call, _ := m.reg.Lookup("c1")
	if call.Conversation.SelectedDate != "2025-03-04" {
		t.Fatalf("SelectedDate = %s", call.Conversation.SelectedDate)
	}

	out = decodeOutput(t, l.handleFunction(ctx, FunctionCallEvent{
		CallID:    "f3",
		Name:      "book_slot",
		Arguments: `{"slot":1,"name":"ana lopez","email":"Ana@Example.com","phone":"555-123-4567"}`,
	}))
	if !out.Success {
		t.Fatalf("book_slot failed: %s", out.Message)
	}

	if call.Conversation.BookingState != conversation.StateConfirmed {
		t.Fatalf("state = %s, want confirmed", call.Conversation.BookingState)
	}
	if call.BookingConfirmedAt.IsZero() {
		t.Fatal("BookingConfirmedAt not recorded")
	}
	if got := call.Conversation.CollectedFields["email"]; got != "ana@example.com" {
		t.Fatalf("email = %q, want cleaned", got)
	}

	// Confirmed is terminal: a repeated book intent must not re-book.
	out = decodeOutput(t, l.handleFunction(ctx, FunctionCallEvent{CallID: "f4", Name: "book_slot", Arguments: `{"slot":1}`}))
	if out.Success {
		t.Fatal("re-booking a confirmed call must fail")
	}
	if gw.bookCalls != 1 {
		t.Fatalf("bookCalls = %d, want 1", gw.bookCalls)
	}
}

func TestHangupTimerCancelAndRearm(t *testing.T) {
	tr := &fakeTransport{}
	m := newTestManager(tr, &fakeGateway{})
	l := activeLoop(t, m, "c1")

	call, _ := m.reg.Lookup("c1")
	call.Conversation.BookingState = conversation.StateConfirmed
	m.reg.MarkConfirmed("c1")

	// Armed then cancelled: no hangup may fire.
	l.maybeArmHangup()
	l.cancelHangup()
	time.Sleep(60 * time.Millisecond)
	if tr.hangupCalls.Load() != 0 {
		t.Fatal("cancelled timer still hung up the call")
	}
	if !m.reg.IsLive("c1") {
		t.Fatal("call ended despite cancelled timer")
	}

	// Re-armed after a fresh audio-finished event: the hangup fires.
	l.maybeArmHangup()
	time.Sleep(60 * time.Millisecond)
	if tr.hangupCalls.Load() != 1 {
		t.Fatalf("hangup calls = %d, want 1", tr.hangupCalls.Load())
	}
	if m.reg.IsLive("c1") {
		t.Fatal("call must be removed after hangup")
	}
}

func TestHangupTimerNotArmedBeforeConfirmation(t *testing.T) {
	tr := &fakeTransport{}
	m := newTestManager(tr, &fakeGateway{})
	l := activeLoop(t, m, "c1")

	l.maybeArmHangup()
	time.Sleep(60 * time.Millisecond)
	if tr.hangupCalls.Load() != 0 {
		t.Fatal("timer must not arm before booking confirmation")
	}
	if !m.reg.IsLive("c1") {
		t.Fatal("call must stay live")
	}
}

func TestFireHangupChecksLiveness(t *testing.T) {
	tr := &fakeTransport{}
	m := newTestManager(tr, &fakeGateway{})
	activeLoop(t, m, "c1")

	m.reg.Remove("c1")
	m.fireHangup("c1")
	if tr.hangupCalls.Load() != 0 {
		t.Fatal("fired timer must not hang up a call that already ended")
	}
}

func TestRunLoopFatalHandshakeDoesNotRetry(t *testing.T) {
	tr := &fakeTransport{connectErr: &HandshakeStatusError{Status: 401}}
	m := newTestManager(tr, &fakeGateway{})
	activeLoop(t, m, "c1")

	done := make(chan struct{})
	go func() {
		m.runLoop(context.Background(), "c1")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runLoop did not stop on fatal handshake")
	}
	if _, err := m.reg.Lookup("c1"); !errors.Is(err, ErrCallNotFound) {
		t.Fatal("call must be removed after a fatal handshake")
	}
}

func TestConsumeAnswersEveryFunctionCall(t *testing.T) {
	gw := &fakeGateway{days: offeredDays()}
	m := newTestManager(&fakeTransport{}, gw)
	l := activeLoop(t, m, "c1")

	stream := &fakeStream{events: make(chan []byte, 3)}
	stream.events <- []byte(`{"type":"response.function_call_arguments.done","call_id":"f1","name":"get_available_days","arguments":"{}"}`)
	stream.events <- []byte(`{"type":"some.unknown.event"}`)
	stream.events <- []byte(`{"type":"session.closed","reason":"caller hung up"}`)

	clean, err := l.consume(context.Background(), stream)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !clean {
		t.Fatal("session.closed must end the loop cleanly")
	}

	if len(stream.sent) != 2 {
		t.Fatalf("sent %d messages, want function result + continue", len(stream.sent))
	}
	if !strings.Contains(string(stream.sent[0]), "function_call_output") {
		t.Fatalf("first message = %s", stream.sent[0])
	}
	if !strings.Contains(string(stream.sent[1]), "response.create") {
		t.Fatalf("second message = %s", stream.sent[1])
	}
}

func TestFunctionResultsUseSeededLanguage(t *testing.T) {
	gw := &fakeGateway{days: offeredDays()}
	m := newTestManager(&fakeTransport{}, gw)
	if _, err := m.reg.Insert("c1", "consulate", "", "es"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := m.reg.MarkActive("c1", "c1"); err != nil {
		t.Fatalf("MarkActive: %v", err)
	}
	l := &callLoop{m: m, callID: "c1", log: zap.NewNop()}

	out := decodeOutput(t, l.handleFunction(context.Background(), FunctionCallEvent{CallID: "f1", Name: "get_available_days", Arguments: `{}`}))
	if !out.Success {
		t.Fatalf("get_available_days failed: %s", out.Message)
	}
	if !strings.Contains(out.Message, "días disponibles") {
		t.Fatalf("message = %q, want Spanish day offer", out.Message)
	}
}

func TestDetectLanguageSwitchesFunctionResults(t *testing.T) {
	gw := &fakeGateway{days: offeredDays()}
	m := newTestManager(&fakeTransport{}, gw)
	l := activeLoop(t, m, "c1")
	ctx := context.Background()

	out := decodeOutput(t, l.handleFunction(ctx, FunctionCallEvent{CallID: "f1", Name: "detect_language", Arguments: `{"language":"ES"}`}))
	if !out.Success {
		t.Fatalf("detect_language failed: %s", out.Message)
	}

	out = decodeOutput(t, l.handleFunction(ctx, FunctionCallEvent{CallID: "f2", Name: "get_available_days", Arguments: `{}`}))
	if !strings.Contains(out.Message, "días disponibles") {
		t.Fatalf("message = %q, want Spanish after detection", out.Message)
	}

	out = decodeOutput(t, l.handleFunction(ctx, FunctionCallEvent{CallID: "f3", Name: "detect_language", Arguments: `{"language":"fr"}`}))
	if out.Success {
		t.Fatal("unsupported language must be rejected")
	}
	call, _ := m.reg.Lookup("c1")
	if call.Conversation.Language != "es" {
		t.Fatalf("language = %q, a rejected detection must not change it", call.Conversation.Language)
	}
}

type scriptedTransport struct {
	streams  []EventStream
	connects int
}

func (s *scriptedTransport) Accept(context.Context, string, AcceptConfig) error { return nil }

func (s *scriptedTransport) Connect(context.Context, string) (EventStream, error) {
	if s.connects >= len(s.streams) {
		return nil, errors.New("no stream scripted")
	}
	st := s.streams[s.connects]
	s.connects++
	return st, nil
}

func (s *scriptedTransport) Hangup(context.Context, string) error { return nil }

func droppingStream(events ...string) *fakeStream {
	s := &fakeStream{events: make(chan []byte, len(events))}
	for _, e := range events {
		s.events <- []byte(e)
	}
	close(s.events)
	return s
}

func TestRunLoopBudgetResetsAfterProductiveStream(t *testing.T) {
	tr := &scriptedTransport{streams: []EventStream{
		droppingStream(`{"type":"input_audio_buffer.speech_started"}`),
		droppingStream(`{"type":"input_audio_buffer.speech_started"}`),
		droppingStream(`{"type":"session.closed","reason":"caller hung up"}`),
	}}
	reg := NewRegistry(30 * time.Minute)
	tenants := tenant.NewInMemoryRegistry(tenant.Tenant{ID: "consulate", Name: "Consulate", Active: true})
	m := NewManager(reg, tr, &fakeGateway{}, tenants, zap.NewNop(), nil, ManagerConfig{
		WindowDays:        7,
		MaxSlots:          5,
		AcceptTimeout:     time.Second,
		HangupSilence:     20 * time.Millisecond,
		ReconnectAttempts: 2,
		ReconnectBackoff:  time.Millisecond,
	})
	if _, err := reg.Insert("c1", "consulate", "", "en"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := reg.MarkActive("c1", "c1"); err != nil {
		t.Fatalf("MarkActive: %v", err)
	}

	done := make(chan struct{})
	go func() {
		m.runLoop(context.Background(), "c1")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runLoop did not finish")
	}

	// Each dropped stream carried an event, so the budget restarts and the
	// loop reaches the stream that closes cleanly.
	if tr.connects != 3 {
		t.Fatalf("connects = %d, want 3", tr.connects)
	}
}
