package domain

import "time"

// AuditAction names the mutating operation an entry records.
type AuditAction string

const (
	AuditActionSessionCreate AuditAction = "SessionCreate"
	AuditActionTicketCreate  AuditAction = "TicketCreate"
	AuditActionTicketUpdate  AuditAction = "TicketUpdate"
	AuditActionArticleAdd    AuditAction = "ArticleAdd"
	AuditActionContextMerge  AuditAction = "AddDetectionContext"
)

// AuditEntry is an append-only record of a mutating action.
type AuditEntry struct {
	ID        int64
	Action    AuditAction
	TicketID  *string
	Details   map[string]any
	Timestamp time.Time
	Playbook  string
	Stage     int
	Success   bool
}

// PlaybookContext identifies the calling playbook step.
type PlaybookContext struct {
	Playbook string
	Stage    int
}
