package tenant

import (
	"context"
	"errors"
)

// ErrNotFound signals an unknown or inactive tenant.
var ErrNotFound = errors.New("tenant: not found")

// Tenant is a configured organization served by the booking assistant.
type Tenant struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Active          bool              `json:"active"`
	RequiredFields  []string          `json:"required_fields"`
	DefaultLanguage string            `json:"default_language"`
	WelcomeMessages map[string]string `json:"welcome_messages"`
	BusinessStart   int               `json:"business_start"`
	BusinessEnd     int               `json:"business_end"`
	TimeZone        string            `json:"time_zone"`
	CalendarID      string            `json:"calendar_id"`
	AdminEmail      string            `json:"admin_email"`
	SystemPrompt    string            `json:"system_prompt"`
	Voice           string            `json:"voice"`
}

// DefaultRequiredFields is applied when a tenant record omits its own list.
var DefaultRequiredFields = []string{"name", "email", "phone"}

// Registry resolves tenant records for incoming conversations.
type Registry interface {
	Lookup(ctx context.Context, id string) (Tenant, error)
	List(ctx context.Context) ([]Tenant, error)
	Close() error
}

// Normalize fills in defaults for optional fields.
func Normalize(t Tenant) Tenant {
	if len(t.RequiredFields) == 0 {
		t.RequiredFields = append([]string(nil), DefaultRequiredFields...)
	}
	if t.BusinessStart == 0 && t.BusinessEnd == 0 {
		t.BusinessStart = 9
		t.BusinessEnd = 17
	}
	if t.TimeZone == "" {
		t.TimeZone = "America/Mexico_City"
	}
	if t.DefaultLanguage == "" {
		t.DefaultLanguage = "en"
	}
	if t.WelcomeMessages == nil {
		t.WelcomeMessages = map[string]string{}
	}
	return t
}
