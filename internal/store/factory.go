package store

import (
	"context"
	"strings"
	"time"
)

// NewSessionStore prefers redis when configured, then postgres, falling back
// to in-memory for local/dev use.
func NewSessionStore(ctx context.Context, redisURL, databaseURL string, ttl time.Duration) (SessionStore, error) {
	if strings.TrimSpace(redisURL) != "" {
		return NewRedisSessionStore(ctx, redisURL, ttl)
	}
	if strings.TrimSpace(databaseURL) != "" {
		return NewPostgresSessionStore(ctx, databaseURL)
	}
	return NewInMemorySessionStore(), nil
}

// NewAppointmentStore creates a postgres-backed store when configured,
// otherwise in-memory.
func NewAppointmentStore(ctx context.Context, databaseURL string) (AppointmentStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryAppointmentStore(), nil
	}
	return NewPostgresAppointmentStore(ctx, databaseURL)
}
