package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-gateway/internal/domain"
	"github.com/spec-kit/ticket-gateway/internal/events"
	"github.com/spec-kit/ticket-gateway/internal/repository"
	apperrors "github.com/spec-kit/ticket-gateway/pkg/util/errorutil"
)

// AuditLog writes audit entries inside mutation transactions and announces
// them once committed.
type AuditLog struct {
	store      repository.Store
	dispatcher events.Dispatcher
	logger     *zap.Logger
	clock      func() time.Time
}

// NewAuditLog builds the audit log. dispatcher may be nil.
func NewAuditLog(store repository.Store, dispatcher events.Dispatcher, logger *zap.Logger) *AuditLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditLog{store: store, dispatcher: dispatcher, logger: logger, clock: time.Now}
}

// Append records a successful action with the transaction's repositories.
func (a *AuditLog) Append(ctx context.Context, repos repository.Repositories, action domain.AuditAction, ticket *domain.Ticket, details map[string]any, pb domain.PlaybookContext) (*domain.AuditEntry, error) {
	entry := &domain.AuditEntry{
		Action:    action,
		Details:   details,
		Timestamp: a.clock().UTC(),
		Playbook:  pb.Playbook,
		Stage:     pb.Stage,
		Success:   true,
	}
	if ticket != nil {
		id := ticket.TicketID
		entry.TicketID = &id
	}
	if err := repos.Audit.Append(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Committed publishes entry to subscribers after its transaction commits.
func (a *AuditLog) Committed(ctx context.Context, entry *domain.AuditEntry, ticketNumber string) {
	if a.dispatcher == nil || entry == nil {
		return
	}
	_ = a.dispatcher.Publish(ctx, events.NewAuditEvent(*entry, ticketNumber))
}

// RecordFailure writes a Success=false entry for a mutation that failed after
// dispatch. It runs in its own transaction and never returns an error: the
// caller is already reporting cause.
func (a *AuditLog) RecordFailure(ctx context.Context, action domain.AuditAction, ticketNumber string, pb domain.PlaybookContext, cause error) {
	ctx = context.WithoutCancel(ctx)
	entry := &domain.AuditEntry{
		Action: action,
		Details: map[string]any{
			"TicketNumber": ticketNumber,
			"ErrorCode":    apperrors.Code(cause),
		},
		Timestamp: a.clock().UTC(),
		Playbook:  pb.Playbook,
		Stage:     pb.Stage,
		Success:   false,
	}

	err := a.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if ticketNumber != "" {
			if ticket, err := repos.Tickets.GetByNumber(ctx, ticketNumber); err == nil {
				entry.TicketID = &ticket.TicketID
			}
		}
		return repos.Audit.Append(ctx, entry)
	})
	if err != nil {
		a.logger.Warn("audit failure entry not written",
			zap.String("action", string(action)),
			zap.String("ticket_number", ticketNumber),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return
	}
	a.Committed(ctx, entry, ticketNumber)
}
