package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fdezr/frontdesk/internal/booking"
)

func TestClientBookConflictReturnsStructuredResult(t *testing.T) {
	var gotBody bookRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/voice/book" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(booking.BookResult{Success: false, Reason: booking.ReasonSlotTaken})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	res, err := c.Book(context.Background(), "consulate", "call-3", futureSlot(), testFields())
	if err != nil {
		t.Fatalf("conflict must not surface as a transport error: %v", err)
	}
	if res.Success {
		t.Fatal("conflict result must not report success")
	}
	if res.Reason != booking.ReasonSlotTaken {
		t.Fatalf("reason = %q, want %q", res.Reason, booking.ReasonSlotTaken)
	}
	if gotBody.SessionID != "call-3" {
		t.Fatalf("session id in request = %q, want call-3", gotBody.SessionID)
	}
}

func TestClientBookServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	if _, err := c.Book(context.Background(), "consulate", "call-3", futureSlot(), testFields()); err == nil {
		t.Fatal("a 500 must surface as an error")
	} else if !strings.Contains(err.Error(), "500") {
		t.Fatalf("err = %v, want the status in the message", err)
	}
}
