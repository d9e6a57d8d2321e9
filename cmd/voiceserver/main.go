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

	"github.com/fdezr/frontdesk/internal/config"
	"github.com/fdezr/frontdesk/internal/gateway"
	"github.com/fdezr/frontdesk/internal/httpapi"
	"github.com/fdezr/frontdesk/internal/logging"
	"github.com/fdezr/frontdesk/internal/observability"
	"github.com/fdezr/frontdesk/internal/tenant"
	"github.com/fdezr/frontdesk/internal/voicecall"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.BookingAPIURL == "" {
		log.Fatalf("BOOKING_API_URL is required for the voice server")
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
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

	gw := gateway.NewClient(cfg.BookingAPIURL, cfg.GatewayTimeout)
	transport := voicecall.NewRealtimeTransport(cfg.RealtimeAPIBase, cfg.RealtimeWSBase, cfg.OpenAIAPIKey)
	registry := voicecall.NewRegistry(cfg.StaleCallTimeout)

	manager := voicecall.NewManager(registry, transport, gw, tenants, logger, metrics, voicecall.ManagerConfig{
		Model:             cfg.RealtimeModel,
		WindowDays:        cfg.DaysAhead,
		MaxSlots:          cfg.VoiceMaxSlots,
		AcceptTimeout:     cfg.AcceptTimeout,
		HangupSilence:     cfg.HangupSilence,
		ReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectBackoff:  cfg.ReconnectBackoff,
		SweepInterval:     cfg.SweepInterval,
	})

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	manager.Start(runCtx)

	webhook := httpapi.NewWebhookServer(manager, cfg.WebhookSecret, cfg.DefaultTenant, logger)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: webhook.Router(),
	}

	go func() {
		logger.Info("voice webhook listening", zap.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
}
