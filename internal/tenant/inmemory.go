package tenant

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRegistry holds a fixed tenant set, seeded at startup. Suitable for
// single-tenant deployments and tests.
type InMemoryRegistry struct {
	mu      sync.RWMutex
	tenants map[string]Tenant
}

func NewInMemoryRegistry(tenants ...Tenant) *InMemoryRegistry {
	r := &InMemoryRegistry{tenants: make(map[string]Tenant, len(tenants))}
	for _, t := range tenants {
		r.tenants[t.ID] = Normalize(t)
	}
	return r
}

func (r *InMemoryRegistry) Lookup(_ context.Context, id string) (Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[id]
	if !ok || !t.Active {
		return Tenant{}, ErrNotFound
	}
	return t, nil
}

func (r *InMemoryRegistry) List(_ context.Context) ([]Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *InMemoryRegistry) Close() error { return nil }
