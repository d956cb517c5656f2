package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-gateway/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	// EventAuditRecorded fires after an audit entry is durably committed.
	EventAuditRecorded EventType = "audit_recorded"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string       `json:"id"`
	Type      EventType    `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	Payload   AuditPayload `json:"payload"`
}

// AuditPayload mirrors a committed audit entry.
type AuditPayload struct {
	AuditID      int64              `json:"audit_id"`
	Action       domain.AuditAction `json:"action"`
	TicketID     *string            `json:"ticket_id,omitempty"`
	TicketNumber string             `json:"ticket_number,omitempty"`
	Playbook     string             `json:"playbook,omitempty"`
	Stage        int                `json:"stage"`
	Success      bool               `json:"success"`
	Details      map[string]any     `json:"details,omitempty"`
}

// NewAuditEvent wraps a committed entry.
func NewAuditEvent(entry domain.AuditEntry, ticketNumber string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      EventAuditRecorded,
		Timestamp: entry.Timestamp,
		Payload: AuditPayload{
			AuditID:      entry.ID,
			Action:       entry.Action,
			TicketID:     entry.TicketID,
			TicketNumber: ticketNumber,
			Playbook:     entry.Playbook,
			Stage:        entry.Stage,
			Success:      entry.Success,
			Details:      entry.Details,
		},
	}
}
