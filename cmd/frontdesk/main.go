package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fdezr/frontdesk/internal/booking"
	"github.com/fdezr/frontdesk/internal/calendar"
	"github.com/fdezr/frontdesk/internal/chat"
	"github.com/fdezr/frontdesk/internal/config"
	"github.com/fdezr/frontdesk/internal/gateway"
	"github.com/fdezr/frontdesk/internal/httpapi"
	"github.com/fdezr/frontdesk/internal/llm"
	"github.com/fdezr/frontdesk/internal/logging"
	"github.com/fdezr/frontdesk/internal/notify"
	"github.com/fdezr/frontdesk/internal/observability"
	"github.com/fdezr/frontdesk/internal/store"
	"github.com/fdezr/frontdesk/internal/tenant"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	sessions, err := store.NewSessionStore(ctx, cfg.RedisURL, cfg.DatabaseURL, cfg.SessionTTL)
	if err != nil {
		logger.Fatal("session store init failed", zap.Error(err))
	}
	defer sessions.Close()

	appointments, err := store.NewAppointmentStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("appointment store init failed", zap.Error(err))
	}
	defer appointments.Close()

	tenants, err := tenant.NewRegistry(ctx, cfg.DatabaseURL, tenant.Tenant{
		ID:            cfg.DefaultTenant,
		BusinessStart: cfg.BusinessHoursStart,
		BusinessEnd:   cfg.BusinessHoursEnd,
		TimeZone:      cfg.TimeZone,
	})
	if err != nil {
		logger.Fatal("tenant registry init failed", zap.Error(err))
	}
	defer tenants.Close()

	var cal calendar.Client
	if cfg.GraphAccessToken != "" {
		cal = calendar.NewGraphClient(cfg.GraphBaseURL, cfg.GraphAccessToken)
	} else {
		logger.Warn("no calendar credentials configured, using in-memory calendar")
		cal = calendar.NewMock()
	}

	var mail notify.Sender
	if cfg.GraphAccessToken != "" {
		mail = notify.NewGraphSender(cfg.GraphBaseURL, cfg.GraphAccessToken, cfg.DefaultTenant)
	} else {
		mail = &notify.Mock{}
	}

	gw := gateway.NewService(tenants, cal, appointments, mail, logger, metrics, cfg.SlotDuration, cfg.GatewayTimeout)
	machine := booking.NewMachine(gw, cfg.DaysAhead, cfg.MaxSlots)

	ai := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.ChatModel, cfg.ExtractionModel)
	chatSvc := chat.NewService(sessions, tenants, machine, ai, ai, logger, metrics)

	api := httpapi.New(cfg, chatSvc, gw, metrics, logger)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
}
