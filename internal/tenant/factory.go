package tenant

import (
	"context"
	"strings"
)

// NewRegistry creates a postgres-backed registry when configured, otherwise a
// single-tenant in-memory registry seeded from fallback. The fallback tenant
// is normalized on lookup, so callers only fill in what differs from defaults.
func NewRegistry(ctx context.Context, databaseURL string, fallback Tenant) (Registry, error) {
	if strings.TrimSpace(databaseURL) != "" {
		return NewPostgresRegistry(ctx, databaseURL)
	}
	fallback.Active = true
	if fallback.Name == "" {
		fallback.Name = fallback.ID
	}
	return NewInMemoryRegistry(fallback), nil
}
