package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the booking and voice services.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	LogLevel         string
	Development      bool
	AllowedOrigins   []string
	ChatRateLimit    int

	DatabaseURL string
	RedisURL    string
	SessionTTL  time.Duration

	DaysAhead          int
	MaxSlots           int
	VoiceMaxSlots      int
	SlotDuration       time.Duration
	BusinessHoursStart int
	BusinessHoursEnd   int
	TimeZone           string

	OpenAIAPIKey    string
	ChatModel       string
	ExtractionModel string

	GraphBaseURL     string
	GraphAccessToken string

	RealtimeAPIBase   string
	RealtimeWSBase    string
	RealtimeModel     string
	WebhookSecret     string
	BookingAPIURL     string
	DefaultTenant     string
	AcceptTimeout     time.Duration
	GatewayTimeout    time.Duration
	HangupSilence     time.Duration
	ReconnectAttempts int
	ReconnectBackoff  time.Duration
	StaleCallTimeout  time.Duration
	SweepInterval     time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "frontdesk"),
		LogLevel:         envOrDefault("APP_LOG_LEVEL", "info"),
		ChatRateLimit:    60,
		ShutdownTimeout:  15 * time.Second,

		DatabaseURL: trimmedEnv("DATABASE_URL"),
		RedisURL:    trimmedEnv("REDIS_URL"),
		SessionTTL:  24 * time.Hour,

		DaysAhead:          7,
		MaxSlots:           10,
		VoiceMaxSlots:      5,
		SlotDuration:       30 * time.Minute,
		BusinessHoursStart: 9,
		BusinessHoursEnd:   17,
		TimeZone:           envOrDefault("APP_TIMEZONE", "America/Mexico_City"),

		OpenAIAPIKey:    trimmedEnv("OPENAI_API_KEY"),
		ChatModel:       envOrDefault("OPENAI_MODEL", "gpt-4.1-mini"),
		ExtractionModel: envOrDefault("OPENAI_EXTRACTION_MODEL", "gpt-4.1-mini"),

		GraphBaseURL:     envOrDefault("GRAPH_API_BASE", "https://graph.microsoft.com/v1.0"),
		GraphAccessToken: trimmedEnv("GRAPH_ACCESS_TOKEN"),

		RealtimeAPIBase:   envOrDefault("REALTIME_API_BASE", "https://api.openai.com/v1"),
		RealtimeWSBase:    envOrDefault("REALTIME_WS_BASE", "wss://api.openai.com/v1/realtime"),
		RealtimeModel:     envOrDefault("REALTIME_MODEL", "gpt-realtime-2025-08-28"),
		WebhookSecret:     trimmedEnv("VOICE_WEBHOOK_SECRET"),
		BookingAPIURL:     trimmedEnv("BOOKING_API_URL"),
		DefaultTenant:     envOrDefault("VOICE_DEFAULT_TENANT", "consulate"),
		AcceptTimeout:     30 * time.Second,
		GatewayTimeout:    30 * time.Second,
		HangupSilence:     2 * time.Second,
		ReconnectAttempts: 3,
		ReconnectBackoff:  time.Second,
		StaleCallTimeout:  30 * time.Minute,
		SweepInterval:     5 * time.Minute,
	}

	if origins := trimmedEnv("APP_ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.Development, err = boolFromEnv("APP_DEVELOPMENT", cfg.Development)
	if err != nil {
		return Config{}, err
	}
	cfg.ChatRateLimit, err = intFromEnv("APP_CHAT_RATE_LIMIT", cfg.ChatRateLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionTTL, err = durationFromEnv("APP_SESSION_TTL", cfg.SessionTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.DaysAhead, err = intFromEnv("BOOKING_DAYS_AHEAD", cfg.DaysAhead)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxSlots, err = intFromEnv("BOOKING_MAX_SLOTS", cfg.MaxSlots)
	if err != nil {
		return Config{}, err
	}
	cfg.VoiceMaxSlots, err = intFromEnv("BOOKING_VOICE_MAX_SLOTS", cfg.VoiceMaxSlots)
	if err != nil {
		return Config{}, err
	}
	cfg.SlotDuration, err = durationFromEnv("BOOKING_SLOT_DURATION", cfg.SlotDuration)
	if err != nil {
		return Config{}, err
	}
	cfg.BusinessHoursStart, err = intFromEnv("BOOKING_HOURS_START", cfg.BusinessHoursStart)
	if err != nil {
		return Config{}, err
	}
	cfg.BusinessHoursEnd, err = intFromEnv("BOOKING_HOURS_END", cfg.BusinessHoursEnd)
	if err != nil {
		return Config{}, err
	}
	cfg.AcceptTimeout, err = durationFromEnv("VOICE_ACCEPT_TIMEOUT", cfg.AcceptTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.GatewayTimeout, err = durationFromEnv("VOICE_GATEWAY_TIMEOUT", cfg.GatewayTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.HangupSilence, err = durationFromEnv("VOICE_HANGUP_SILENCE", cfg.HangupSilence)
	if err != nil {
		return Config{}, err
	}
	cfg.ReconnectAttempts, err = intFromEnv("VOICE_RECONNECT_ATTEMPTS", cfg.ReconnectAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.ReconnectBackoff, err = durationFromEnv("VOICE_RECONNECT_BACKOFF", cfg.ReconnectBackoff)
	if err != nil {
		return Config{}, err
	}
	cfg.StaleCallTimeout, err = durationFromEnv("VOICE_STALE_CALL_TIMEOUT", cfg.StaleCallTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SweepInterval, err = durationFromEnv("VOICE_SWEEP_INTERVAL", cfg.SweepInterval)
	if err != nil {
		return Config{}, err
	}

	if cfg.SlotDuration < 5*time.Minute {
		return Config{}, fmt.Errorf("BOOKING_SLOT_DURATION must be at least 5m")
	}
	if cfg.BusinessHoursStart < 0 || cfg.BusinessHoursEnd > 24 || cfg.BusinessHoursStart >= cfg.BusinessHoursEnd {
		return Config{}, fmt.Errorf("business hours %d-%d are invalid", cfg.BusinessHoursStart, cfg.BusinessHoursEnd)
	}
	if cfg.DaysAhead <= 0 {
		return Config{}, fmt.Errorf("BOOKING_DAYS_AHEAD must be positive")
	}
	if cfg.MaxSlots <= 0 || cfg.VoiceMaxSlots <= 0 {
		return Config{}, fmt.Errorf("slot limits must be positive")
	}
	if cfg.ReconnectAttempts < 1 {
		return Config{}, fmt.Errorf("VOICE_RECONNECT_ATTEMPTS must be at least 1")
	}
	if cfg.StaleCallTimeout < time.Minute {
		return Config{}, fmt.Errorf("VOICE_STALE_CALL_TIMEOUT must be at least 1m")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
