package voicecall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// AcceptConfig is the session description sent when accepting a call.
type AcceptConfig struct {
	Model        string
	Instructions string
	Voice        string
	Tools        []ToolDefinition
}

// ToolDefinition describes one callable function exposed to the model.
type ToolDefinition struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// EventStream is one live duplex event connection for a call.
type EventStream interface {
	Next(ctx context.Context) ([]byte, error)
	Send(ctx context.Context, payload any) error
	Close() error
}

// Transport accepts incoming calls, opens their event streams, and hangs
// them up.
type Transport interface {
	Accept(ctx context.Context, callID string, cfg AcceptConfig) error
	Connect(ctx context.Context, callID string) (EventStream, error)
	Hangup(ctx context.Context, callID string) error
}

// HandshakeStatusError carries the HTTP status of a rejected websocket
// handshake so the reconnect loop can classify it.
type HandshakeStatusError struct {
	Status int
}

func (e *HandshakeStatusError) Error() string {
	return fmt.Sprintf("websocket handshake rejected with status %d", e.Status)
}

// RealtimeTransport drives calls on the realtime voice API.
type RealtimeTransport struct {
	apiBase string
	wsBase  string
	apiKey  string
	client  *http.Client
	dialer  *websocket.Dialer
}

func NewRealtimeTransport(apiBase, wsBase, apiKey string) *RealtimeTransport {
	return &RealtimeTransport{
		apiBase: strings.TrimRight(strings.TrimSpace(apiBase), "/"),
		wsBase:  strings.TrimRight(strings.TrimSpace(wsBase), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

func (t *RealtimeTransport) Accept(ctx context.Context, callID string, cfg AcceptConfig) error {
	payload := map[string]any{
		"type":         "realtime",
		"model":        cfg.Model,
		"instructions": cfg.Instructions,
		"audio": map[string]any{
			"output": map[string]any{"voice": cfg.Voice},
		},
		"tools": cfg.Tools,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal accept payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/realtime/calls/%s/accept", t.apiBase, url.PathEscape(callID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create accept request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("accept call: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("accept http status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func (t *RealtimeTransport) Connect(ctx context.Context, callID string) (EventStream, error) {
	endpoint := fmt.Sprintf("%s?call_id=%s", t.wsBase, url.QueryEscape(callID))
	header := http.Header{}
	header.Set("Authorization", "Bearer "+t.apiKey)

	conn, res, err := t.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if res != nil {
			return nil, &HandshakeStatusError{Status: res.StatusCode}
		}
		return nil, fmt.Errorf("dial event stream: %w", err)
	}
	return &wsStream{conn: conn}, nil
}

func (t *RealtimeTransport) Hangup(ctx context.Context, callID string) error {
	endpoint := fmt.Sprintf("%s/realtime/calls/%s/hangup", t.apiBase, url.PathEscape(callID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create hangup request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	res, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("hangup call: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("hangup http status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type wsStream struct {
	conn *websocket.Conn
}

func (s *wsStream) Next(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetReadDeadline(deadline)
	}
	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (s *wsStream) Send(_ context.Context, payload any) error {
	return s.conn.WriteJSON(payload)
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}
