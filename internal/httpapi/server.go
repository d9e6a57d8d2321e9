package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"github.com/fdezr/frontdesk/internal/chat"
	"github.com/fdezr/frontdesk/internal/config"
	"github.com/fdezr/frontdesk/internal/conversation"
	"github.com/fdezr/frontdesk/internal/gateway"
	"github.com/fdezr/frontdesk/internal/observability"
	"github.com/fdezr/frontdesk/internal/store"
	"github.com/fdezr/frontdesk/internal/tenant"
)

// Server is the chat and booking-gateway API.
type Server struct {
	cfg     config.Config
	chat    *chat.Service
	gw      *gateway.Service
	metrics *observability.Metrics
	log     *zap.Logger
}

func New(cfg config.Config, chatSvc *chat.Service, gw *gateway.Service, metrics *observability.Metrics, log *zap.Logger) *Server {
	return &Server{
		cfg:     cfg,
		chat:    chatSvc,
		gw:      gw,
		metrics: metrics,
		log:     log,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(s.cfg.ChatRateLimit, time.Minute))
		r.Post("/v1/chat", s.handleChatTurn)
	})

	r.Get("/v1/voice/days", s.handleListDays)
	r.Get("/v1/voice/slots", s.handleListSlots)
	r.Post("/v1/voice/book", s.handleBook)

	r.Get("/v1/appointments", s.handleListAppointments)
	r.Get("/v1/appointments/{id}", s.handleGetAppointment)
	r.Delete("/v1/appointments/{id}", s.handleCancelAppointment)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"generated_at": "",
			"window_size":  0,
			"stages":       []any{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.metrics.Window.Snapshot())
}

func (s *Server) handleChatTurn(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := s.chat.HandleTurn(r.Context(), req)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, res)
	case errors.Is(err, chat.ErrValidation):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, tenant.ErrNotFound):
		respondError(w, http.StatusNotFound, "tenant_not_found", "unknown or inactive tenant")
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", "unknown session")
	default:
		s.log.Error("chat turn failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "chat turn failed")
	}
}

func (s *Server) handleListDays(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant"))
	if tenantID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "query parameter tenant is required")
		return
	}
	window := intQuery(r, "window", s.cfg.DaysAhead)

	days, err := s.gw.ListDays(r.Context(), tenantID, window)
	if err != nil {
		s.respondGatewayError(w, err)
		return
	}
	if days == nil {
		days = []conversation.Day{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"days": days})
}

func (s *Server) handleListSlots(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant"))
	if tenantID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "query parameter tenant is required")
		return
	}
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	max := intQuery(r, "max", s.cfg.MaxSlots)

	slots, err := s.gw.ListSlots(r.Context(), tenantID, date, max)
	if err != nil {
		s.respondGatewayError(w, err)
		return
	}
	if slots == nil {
		slots = []conversation.Slot{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

type bookRequest struct {
	TenantID  string            `json:"tenant_id"`
	SessionID string            `json:"session_id,omitempty"`
	Slot      conversation.Slot `json:"slot"`
	Fields    map[string]string `json:"fields"`
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.TenantID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "tenant_id is required")
		return
	}
	if req.Slot.Start.IsZero() || !req.Slot.End.After(req.Slot.Start) {
		respondError(w, http.StatusBadRequest, "invalid_request", "slot start/end are required")
		return
	}

	res, err := s.gw.Book(r.Context(), req.TenantID, req.SessionID, req.Slot, req.Fields)
	if err != nil {
		s.respondGatewayError(w, err)
		return
	}
	if !res.Success {
		respondJSON(w, http.StatusConflict, res)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant"))
	if tenantID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "query parameter tenant is required")
		return
	}
	limit := intQuery(r, "limit", 50)

	items, err := s.gw.Appointments(r.Context(), tenantID, limit)
	if err != nil {
		s.respondGatewayError(w, err)
		return
	}
	if items == nil {
		items = []store.Appointment{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

func (s *Server) handleGetAppointment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	appt, err := s.gw.Appointment(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "appointment_not_found", "unknown appointment")
		return
	}
	if err != nil {
		s.respondGatewayError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, appt)
}

func (s *Server) handleCancelAppointment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.gw.CancelAppointment(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "appointment_not_found", "unknown appointment")
		return
	}
	if err != nil {
		s.respondGatewayError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) respondGatewayError(w http.ResponseWriter, err error) {
	if errors.Is(err, tenant.ErrNotFound) {
		respondError(w, http.StatusNotFound, "tenant_not_found", "unknown or inactive tenant")
		return
	}
	s.log.Error("gateway call failed", zap.Error(err))
	respondError(w, http.StatusBadGateway, "gateway_failure", "booking gateway call failed")
}

func intQuery(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
