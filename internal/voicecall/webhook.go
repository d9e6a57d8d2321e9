package voicecall

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const signatureTolerance = 5 * time.Minute

var (
	ErrBadSignature   = errors.New("webhook signature verification failed")
	ErrStaleTimestamp = errors.New("webhook timestamp outside tolerance")
)

// WebhookEvent is the inbound "incoming call" notification.
type WebhookEvent struct {
	Type string `json:"type"`
	Data struct {
		CallID string `json:"call_id"`
		SIP    struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"sip_headers"`
	} `json:"data"`
}

// ParseWebhook decodes and minimally validates an incoming-call payload.
func ParseWebhook(raw []byte) (WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return WebhookEvent{}, fmt.Errorf("decode webhook: %w", err)
	}
	if ev.Data.CallID == "" {
		return WebhookEvent{}, errors.New("webhook missing call id")
	}
	return ev, nil
}

// VerifySignature checks an HMAC-SHA256 webhook signature of the form
// "v1,<hex>" computed over "<timestamp>.<payload>". The timestamp must be
// within the tolerance window of now.
func VerifySignature(secret string, payload []byte, signature, timestamp string, now time.Time) error {
	ts, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp %q", ErrBadSignature, timestamp)
	}
	drift := now.Sub(time.Unix(ts, 0))
	if drift > signatureTolerance || drift < -signatureTolerance {
		return ErrStaleTimestamp
	}

	provided, ok := strings.CutPrefix(strings.TrimSpace(signature), "v1,")
	if !ok {
		return fmt.Errorf("%w: unrecognized scheme", ErrBadSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return ErrBadSignature
	}
	return nil
}
