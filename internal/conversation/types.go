package conversation

import "time"

// BookingState tracks how far a conversation has progressed through the
// booking flow.
type BookingState string

const (
	StateNone         BookingState = "none"
	StateAwaitingDay  BookingState = "awaiting_day"
	StateAwaitingSlot BookingState = "awaiting_slot"
	StateConfirmed    BookingState = "confirmed"
)

// Day is a calendar date offered for selection before slots are shown.
type Day struct {
	Date      string `json:"date"` // YYYY-MM-DD in the tenant time zone
	DisplayEN string `json:"display_en"`
	DisplayES string `json:"display_es"`
	SlotCount int    `json:"slot_count"`
}

// Slot is a bookable fixed-duration time window. Display is derived from
// Start and never authoritative on its own.
type Slot struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	TimeZone string    `json:"timezone"`
	Display  string    `json:"display"`
}

// BusyInterval is a calendar-reported occupied range. Intervals may overlap
// each other and must be merged before use.
type BusyInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// State is the persisted per-conversation record, one per chat session or
// voice call.
type State struct {
	ID              string            `json:"session_id"`
	TenantID        string            `json:"tenant_id"`
	CollectedFields map[string]string `json:"collected_fields"`
	BookingState    BookingState      `json:"booking_state"`
	OfferedDays     []Day             `json:"offered_days,omitempty"`
	OfferedSlots    []Slot            `json:"offered_slots,omitempty"`
	SelectedDate    string            `json:"selected_date,omitempty"`
	Language        string            `json:"language,omitempty"`
	Transcript      []Turn            `json:"transcript,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Turn is a single user or assistant message in the transcript.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// New returns a fresh conversation state in the initial booking state.
func New(id, tenantID string) *State {
	now := time.Now().UTC()
	return &State{
		ID:              id,
		TenantID:        tenantID,
		CollectedFields: make(map[string]string),
		BookingState:    StateNone,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// MergeFields adds newly extracted fields without overwriting values that
// were already collected. Keys accumulate monotonically.
func (s *State) MergeFields(fields map[string]string) []string {
	var added []string
	for k, v := range fields {
		if v == "" {
			continue
		}
		if _, ok := s.CollectedFields[k]; ok {
			continue
		}
		s.CollectedFields[k] = v
		added = append(added, k)
	}
	return added
}

// MissingFields returns the required field names not yet collected, in the
// order required lists them.
func (s *State) MissingFields(required []string) []string {
	missing := make([]string, 0, len(required))
	for _, f := range required {
		if s.CollectedFields[f] == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// Clone returns a deep copy safe to mutate independently.
func (s *State) Clone() *State {
	cp := *s
	cp.CollectedFields = make(map[string]string, len(s.CollectedFields))
	for k, v := range s.CollectedFields {
		cp.CollectedFields[k] = v
	}
	cp.OfferedDays = append([]Day(nil), s.OfferedDays...)
	cp.OfferedSlots = append([]Slot(nil), s.OfferedSlots...)
	cp.Transcript = append([]Turn(nil), s.Transcript...)
	return &cp
}

// AppendTurn records a transcript entry.
func (s *State) AppendTurn(role, content string) {
	s.Transcript = append(s.Transcript, Turn{
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
}
