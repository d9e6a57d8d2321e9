package voicecall

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType identifies realtime transport payload variants.
type EventType string

const (
	TypeSessionCreated EventType = "session.created"
	TypeSessionClosed  EventType = "session.closed"
	TypeSpeechStarted  EventType = "input_audio_buffer.speech_started"
	TypeAudioDone      EventType = "response.output_audio.done"
	TypeFunctionCall   EventType = "response.function_call_arguments.done"
	TypeError          EventType = "error"
)

var ErrUnsupportedEvent = errors.New("unsupported event type")

type Envelope struct {
	Type EventType `json:"type"`
}

// FunctionCallEvent is an inbound structured function-call intent. Arguments
// is the raw JSON argument object as sent by the model.
type FunctionCallEvent struct {
	Type      EventType `json:"type"`
	CallID    string    `json:"call_id"`
	Name      string    `json:"name"`
	Arguments string    `json:"arguments"`
}

type SpeechStartedEvent struct {
	Type EventType `json:"type"`
}

type AudioDoneEvent struct {
	Type       EventType `json:"type"`
	ResponseID string    `json:"response_id"`
}

type SessionClosedEvent struct {
	Type   EventType `json:"type"`
	Reason string    `json:"reason,omitempty"`
}

type ErrorEvent struct {
	Type  EventType `json:"type"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseEvent decodes one inbound transport event. Unknown types return
// ErrUnsupportedEvent so the loop can skip them without failing.
func ParseEvent(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeFunctionCall:
		var ev FunctionCallEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		if ev.Name == "" || ev.CallID == "" {
			return nil, errors.New("invalid function call event")
		}
		return ev, nil
	case TypeSpeechStarted:
		var ev SpeechStartedEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case TypeAudioDone:
		var ev AudioDoneEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case TypeSessionClosed:
		var ev SessionClosedEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case TypeError:
		var ev ErrorEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	default:
		return nil, ErrUnsupportedEvent
	}
}

// functionResult is the outbound answer to a function call. The transport
// contract requires every function call to be answered, then followed by a
// continue signal so the model speaks the result.
type functionResult struct {
	Type string             `json:"type"`
	Item functionResultItem `json:"item"`
}

type functionResultItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

type continueSignal struct {
	Type string `json:"type"`
}

func newFunctionResult(callID, output string) functionResult {
	return functionResult{
		Type: "conversation.item.create",
		Item: functionResultItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	}
}

func newContinueSignal() continueSignal {
	return continueSignal{Type: "response.create"}
}
