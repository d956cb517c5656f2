package repository

import (
	"context"

	"github.com/spec-kit/ticket-gateway/internal/domain"
)

// AuditRepository appends audit entries. Entries are never read back by the
// gateway; ListByTicket exists for operators and tests.
type AuditRepository interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.AuditEntry, error)
}

type auditRepository struct {
	q Querier
}

// NewAuditRepository builds repository.
func NewAuditRepository(q Querier) AuditRepository {
	return &auditRepository{q: q}
}

func (r *auditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	const query = `
        INSERT INTO audit_log (action, ticket_id, details, playbook, stage, success, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id`
	return translate(r.q.QueryRow(ctx, query,
		entry.Action,
		entry.TicketID,
		entry.Details,
		entry.Playbook,
		entry.Stage,
		entry.Success,
		entry.Timestamp,
	).Scan(&entry.ID))
}

func (r *auditRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.AuditEntry, error) {
	const query = `
        SELECT id, action, ticket_id, details, playbook, stage, success, created_at
        FROM audit_log WHERE ticket_id=$1 ORDER BY id ASC`
	rows, err := r.q.Query(ctx, query, ticketID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var result []domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.Action,
			&entry.TicketID,
			&entry.Details,
			&entry.Playbook,
			&entry.Stage,
			&entry.Success,
			&entry.Timestamp,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
