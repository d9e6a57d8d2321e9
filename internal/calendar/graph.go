package calendar

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

	"github.com/fdezr/frontdesk/internal/conversation"
	"github.com/fdezr/frontdesk/internal/reliability"
)

const graphMaxAttempts = 3

// GraphClient talks to the Microsoft Graph calendar API.
type GraphClient struct {
	base   string
	token  string
	client *http.Client
}

func NewGraphClient(base, token string) *GraphClient {
	return &GraphClient{
		base:  strings.TrimRight(strings.TrimSpace(base), "/"),
		token: strings.TrimSpace(token),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphEvent struct {
	ID    string        `json:"id,omitempty"`
	Start graphDateTime `json:"start"`
	End   graphDateTime `json:"end"`
}

func (c *GraphClient) BusyIntervals(ctx context.Context, calendarID string, start, end time.Time) ([]conversation.BusyInterval, error) {
	q := url.Values{}
	q.Set("startDateTime", start.UTC().Format(time.RFC3339))
	q.Set("endDateTime", end.UTC().Format(time.RFC3339))
	q.Set("$select", "start,end")
	q.Set("$top", "200")
	path := fmt.Sprintf("/users/%s/calendarView?%s", url.PathEscape(calendarID), q.Encode())

	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var res struct {
		Value []graphEvent `json:"value"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode calendar view: %w", err)
	}

	intervals := make([]conversation.BusyInterval, 0, len(res.Value))
	for _, ev := range res.Value {
		s, err := parseGraphTime(ev.Start)
		if err != nil {
			return nil, fmt.Errorf("event start: %w", err)
		}
		e, err := parseGraphTime(ev.End)
		if err != nil {
			return nil, fmt.Errorf("event end: %w", err)
		}
		intervals = append(intervals, conversation.BusyInterval{Start: s, End: e})
	}
	return intervals, nil
}

func (c *GraphClient) CreateEvent(ctx context.Context, calendarID string, ev Event) (string, error) {
	payload := map[string]any{
		"subject": ev.Subject,
		"body": map[string]string{
			"contentType": "text",
			"content":     ev.Body,
		},
		"start": graphDateTime{
			DateTime: ev.Start.Format("2006-01-02T15:04:05"),
			TimeZone: ev.TimeZone,
		},
		"end": graphDateTime{
			DateTime: ev.End.Format("2006-01-02T15:04:05"),
			TimeZone: ev.TimeZone,
		},
	}
	if ev.AttendeeEmail != "" {
		payload["attendees"] = []map[string]any{{
			"type": "required",
			"emailAddress": map[string]string{
				"address": ev.AttendeeEmail,
				"name":    ev.AttendeeName,
			},
		}}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	path := fmt.Sprintf("/users/%s/events", url.PathEscape(calendarID))
	body, err := c.do(ctx, http.MethodPost, path, raw)
	if err != nil {
		return "", err
	}

	var created graphEvent
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("decode created event: %w", err)
	}
	return created.ID, nil
}

func (c *GraphClient) CancelEvent(ctx context.Context, calendarID, eventID string) error {
	path := fmt.Sprintf("/users/%s/events/%s", url.PathEscape(calendarID), url.PathEscape(eventID))
	_, err := c.do(ctx, http.MethodDelete, path, nil)
	return err
}

func (c *GraphClient) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < graphMaxAttempts; attempt++ {
		if attempt > 0 {
			wait := reliability.ExponentialBackoff(attempt, 200*time.Millisecond, 2*time.Second)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		res, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("send request: %w", err)
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(res.Body, 1<<20))
		res.Body.Close()

		if res.StatusCode >= 200 && res.StatusCode < 300 {
			if readErr != nil {
				return nil, fmt.Errorf("read response: %w", readErr)
			}
			return body, nil
		}

		lastErr = fmt.Errorf("graph http status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
		if !reliability.IsRetryableHTTPStatus(res.StatusCode) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func parseGraphTime(dt graphDateTime) (time.Time, error) {
	// Graph omits the offset and reports the zone alongside.
	loc := time.UTC
	if dt.TimeZone != "" && dt.TimeZone != "UTC" {
		l, err := time.LoadLocation(dt.TimeZone)
		if err != nil {
			return time.Time{}, fmt.Errorf("load zone %q: %w", dt.TimeZone, err)
		}
		loc = l
	}
	for _, layout := range []string{"2006-01-02T15:04:05.0000000", "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, dt.DateTime, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", dt.DateTime)
}
