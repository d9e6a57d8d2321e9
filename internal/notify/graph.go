package notify

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
)

// GraphSender sends mail through the Microsoft Graph sendMail endpoint using
// a tenant mailbox as the sender.
type GraphSender struct {
	base    string
	token   string
	mailbox string
	client  *http.Client
}

func NewGraphSender(base, token, mailbox string) *GraphSender {
	return &GraphSender{
		base:    strings.TrimRight(strings.TrimSpace(base), "/"),
		token:   strings.TrimSpace(token),
		mailbox: strings.TrimSpace(mailbox),
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (s *GraphSender) Send(ctx context.Context, msg Message) error {
	payload := map[string]any{
		"message": map[string]any{
			"subject": msg.Subject,
			"body": map[string]string{
				"contentType": "text",
				"content":     msg.Body,
			},
			"toRecipients": []map[string]any{{
				"emailAddress": map[string]string{"address": msg.To},
			}},
		},
		"saveToSentItems": false,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal mail: %w", err)
	}

	endpoint := fmt.Sprintf("%s/users/%s/sendMail", s.base, url.PathEscape(s.mailbox))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("sendmail http status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
