package domain

import "time"

// Ticket is the case record tracked for a security incident. State is an
// opaque status string; no lifecycle is enforced.
type Ticket struct {
	TicketID      string
	TicketNumber  string
	Title         string
	Queue         string
	Priority      string
	Type          string
	State         string
	CustomerUser  string
	DynamicFields map[string]any
	Notes         []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MergeDynamicFields shallow-merges patch into the ticket's dynamic fields.
// Keys in patch overwrite existing keys; keys absent from patch are kept.
func (t *Ticket) MergeDynamicFields(patch map[string]any) map[string]any {
	if t.DynamicFields == nil {
		t.DynamicFields = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		t.DynamicFields[k] = v
	}
	return t.DynamicFields
}

// Touch advances UpdatedAt to now, or one microsecond past the previous value
// when the clock has not moved, so every mutation is observable.
func (t *Ticket) Touch(now time.Time) {
	now = now.UTC().Truncate(time.Microsecond)
	if !now.After(t.UpdatedAt) {
		now = t.UpdatedAt.Add(time.Microsecond)
	}
	t.UpdatedAt = now
}
