// Package logging builds the structured zap logger shared by both servers.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a production JSON logger at the given level. An unknown level
// falls back to info. Development mode switches to the console encoder.
func New(level string, development bool) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
		return cfg.Build()
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// WithCall returns a child logger carrying the call id on every record.
func WithCall(log *zap.Logger, callID string) *zap.Logger {
	return log.With(zap.String("call_id", callID))
}

// WithSession returns a child logger carrying tenant and session ids.
func WithSession(log *zap.Logger, tenantID, sessionID string) *zap.Logger {
	return log.With(zap.String("tenant_id", tenantID), zap.String("session_id", sessionID))
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
