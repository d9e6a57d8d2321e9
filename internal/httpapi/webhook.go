package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/fdezr/frontdesk/internal/observability"
	"github.com/fdezr/frontdesk/internal/tenant"
	"github.com/fdezr/frontdesk/internal/voicecall"
)

// WebhookServer receives incoming-call notifications for the voice side.
type WebhookServer struct {
	manager       *voicecall.Manager
	secret        string
	defaultTenant string
	log           *zap.Logger
}

func NewWebhookServer(manager *voicecall.Manager, secret, defaultTenant string, log *zap.Logger) *WebhookServer {
	return &WebhookServer{
		manager:       manager,
		secret:        secret,
		defaultTenant: defaultTenant,
		log:           log,
	}
}

func (s *WebhookServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Post("/v1/voice/webhook", s.handleWebhook)

	return r
}

func (s *WebhookServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "unreadable body")
		return
	}

	if s.secret != "" {
		sig := r.Header.Get("Webhook-Signature")
		ts := r.Header.Get("Webhook-Timestamp")
		if err := voicecall.VerifySignature(s.secret, payload, sig, ts, time.Now()); err != nil {
			s.log.Warn("webhook rejected", zap.Error(err))
			respondError(w, http.StatusUnauthorized, "bad_signature", "signature verification failed")
			return
		}
	}

	ev, err := voicecall.ParseWebhook(payload)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if ev.Type != "realtime.call.incoming" {
		// Other webhook kinds are acknowledged and ignored.
		respondJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}

	err = s.manager.HandleIncomingCall(r.Context(), ev, s.defaultTenant)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]any{"status": "accepted"})
	case errors.Is(err, voicecall.ErrDuplicate):
		// The transport retries webhooks; a known call id is acknowledged
		// so it stops resending.
		respondJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
	case errors.Is(err, tenant.ErrNotFound):
		s.log.Error("voice tenant not configured", zap.String("tenant", s.defaultTenant))
		respondError(w, http.StatusInternalServerError, "tenant_not_configured", "voice tenant not configured")
	default:
		s.log.Error("incoming call failed", zap.String("call", ev.Data.CallID), zap.Error(err))
		respondError(w, http.StatusBadGateway, "accept_failed", "call could not be accepted")
	}
}
