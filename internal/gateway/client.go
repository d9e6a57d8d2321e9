package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fdezr/frontdesk/internal/booking"
	"github.com/fdezr/frontdesk/internal/conversation"
)

// Client reaches the booking gateway over HTTP. The voice server uses it so
// both transports drive the exact same gateway behavior.
type Client struct {
	base   string
	client *http.Client
}

func NewClient(base string, timeout time.Duration) *Client {
	return &Client{
		base: strings.TrimRight(strings.TrimSpace(base), "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type daysResponse struct {
	Days []conversation.Day `json:"days"`
}

type slotsResponse struct {
	Slots []conversation.Slot `json:"slots"`
}

type bookRequest struct {
	TenantID  string            `json:"tenant_id"`
	SessionID string            `json:"session_id,omitempty"`
	Slot      conversation.Slot `json:"slot"`
	Fields    map[string]string `json:"fields"`
}

func (c *Client) ListDays(ctx context.Context, tenantID string, windowDays int) ([]conversation.Day, error) {
	q := url.Values{}
	q.Set("tenant", tenantID)
	q.Set("window", strconv.Itoa(windowDays))

	var res daysResponse
	if err := c.get(ctx, "/v1/voice/days?"+q.Encode(), &res); err != nil {
		return nil, err
	}
	return res.Days, nil
}

func (c *Client) ListSlots(ctx context.Context, tenantID, date string, max int) ([]conversation.Slot, error) {
	q := url.Values{}
	q.Set("tenant", tenantID)
	q.Set("max", strconv.Itoa(max))
	if date != "" {
		q.Set("date", date)
	}

	var res slotsResponse
	if err := c.get(ctx, "/v1/voice/slots?"+q.Encode(), &res); err != nil {
		return nil, err
	}
	return res.Slots, nil
}

func (c *Client) Book(ctx context.Context, tenantID, sessionID string, slot conversation.Slot, fields map[string]string) (booking.BookResult, error) {
	payload, err := json.Marshal(bookRequest{TenantID: tenantID, SessionID: sessionID, Slot: slot, Fields: fields})
	if err != nil {
		return booking.BookResult{}, fmt.Errorf("marshal book request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/voice/book", bytes.NewReader(payload))
	if err != nil {
		return booking.BookResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return booking.BookResult{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return booking.BookResult{}, fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode == http.StatusConflict {
		// A conflict carries the structured rejection the caller is
		// expected to relay, same as the in-process service.
		var out booking.BookResult
		if err := json.Unmarshal(body, &out); err == nil && !out.Success && out.Reason != "" {
			return out, nil
		}
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return booking.BookResult{}, fmt.Errorf("gateway http status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var out booking.BookResult
	if err := json.Unmarshal(body, &out); err != nil {
		return booking.BookResult{}, fmt.Errorf("decode book response: %w", err)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("gateway http status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(res.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
