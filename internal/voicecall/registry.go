package voicecall

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fdezr/frontdesk/internal/conversation"
)

type Status string

const (
	StatusAccepting Status = "accepting"
	StatusActive    Status = "active"
	StatusEnded     Status = "ended"
)

var (
	ErrCallNotFound = errors.New("call not found")
	ErrDuplicate    = errors.New("call already registered")
)

// Call is the per-call registry entry. The conversation state lives in
// memory for the lifetime of the call; the hangup timer is owned by the
// call's own event loop and never stored here.
type Call struct {
	ID                 string
	TenantID           string
	Caller             string
	Status             Status
	TransportSessionID string
	Conversation       *conversation.State
	StartedAt          time.Time
	LastActivityAt     time.Time
	BookingConfirmedAt time.Time
}

// Registry is the shared map of live calls. It supports concurrent access
// from per-call loops, the webhook handler, and the stale-call sweep.
type Registry struct {
	mu             sync.RWMutex
	calls          map[string]*Call
	staleThreshold time.Duration
	onRemove       func(*Call)
}

func NewRegistry(staleThreshold time.Duration) *Registry {
	if staleThreshold <= 0 {
		staleThreshold = 30 * time.Minute
	}
	return &Registry{
		calls:          make(map[string]*Call),
		staleThreshold: staleThreshold,
	}
}

// SetRemoveHook installs a callback invoked for every call removed by the
// stale sweep.
func (r *Registry) SetRemoveHook(hook func(*Call)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRemove = hook
}

// Insert registers a new call in the accepting state, seeded with the
// tenant's default language. A second webhook for the same call id is a
// duplicate and is rejected.
func (r *Registry) Insert(callID, tenantID, caller, language string) (*Call, error) {
	now := time.Now().UTC()
	conv := conversation.New(callID, tenantID)
	conv.Language = language
	c := &Call{
		ID:             callID,
		TenantID:       tenantID,
		Caller:         caller,
		Status:         StatusAccepting,
		Conversation:   conv,
		StartedAt:      now,
		LastActivityAt: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.calls[callID]; exists {
		return nil, ErrDuplicate
	}
	r.calls[callID] = c
	return c, nil
}

func (r *Registry) Lookup(callID string) (*Call, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.calls[callID]
	if !ok {
		return nil, ErrCallNotFound
	}
	return c, nil
}

// MarkActive transitions an accepted call into the active state.
func (r *Registry) MarkActive(callID, transportSessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[callID]
	if !ok {
		return ErrCallNotFound
	}
	c.Status = StatusActive
	c.TransportSessionID = transportSessionID
	c.LastActivityAt = time.Now().UTC()
	return nil
}

func (r *Registry) Touch(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.calls[callID]; ok {
		c.LastActivityAt = time.Now().UTC()
	}
}

// MarkConfirmed records the booking-confirmation instant for the call.
func (r *Registry) MarkConfirmed(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.calls[callID]; ok {
		c.BookingConfirmedAt = time.Now().UTC()
	}
}

// IsLive reports whether the call is still active. Hangup actions that fire
// from a timer must check this immediately before acting.
func (r *Registry) IsLive(callID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.calls[callID]
	return ok && c.Status == StatusActive
}

// Remove ends and deletes the call. Idempotent; reports whether the call
// was still registered.
func (r *Registry) Remove(callID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[callID]
	if !ok {
		return false
	}
	c.Status = StatusEnded
	delete(r.calls, callID)
	return true
}

func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, c := range r.calls {
		if c.Status == StatusActive {
			count++
		}
	}
	return count
}

// StartJanitor sweeps the registry on a fixed interval and removes any call
// older than the stale threshold, regardless of what its loop is doing. This
// is the backstop for loops that hang without a normal close event.
func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweepStale()
			}
		}
	}()
}

func (r *Registry) sweepStale() {
	now := time.Now().UTC()
	var removed []*Call

	r.mu.Lock()
	for id, c := range r.calls {
		if now.Sub(c.StartedAt) < r.staleThreshold {
			continue
		}
		c.Status = StatusEnded
		delete(r.calls, id)
		removed = append(removed, c)
	}
	hook := r.onRemove
	r.mu.Unlock()

	if hook != nil {
		for _, c := range removed {
			hook(c)
		}
	}
}
