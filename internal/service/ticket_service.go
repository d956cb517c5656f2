package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spec-kit/ticket-gateway/internal/domain"
	"github.com/spec-kit/ticket-gateway/internal/identifier"
	"github.com/spec-kit/ticket-gateway/internal/repository"
	apperrors "github.com/spec-kit/ticket-gateway/pkg/util/errorutil"
)

const defaultIDMaxAttempts = 5

// TicketService coordinates ticket workflows.
type TicketService struct {
	store       repository.Store
	ids         identifier.Generator
	audit       *AuditLog
	maxAttempts int
	clock       func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Store         repository.Store
	IDs           identifier.Generator
	Audit         *AuditLog
	IDMaxAttempts int
}

// TicketFields describes ticket creation payload.
type TicketFields struct {
	Title         string
	Queue         string
	Priority      string
	Type          string
	State         string
	CustomerUser  string
	DynamicFields map[string]any
}

// TicketChanges lists the fields an update overwrites. Nil pointers are left alone.
type TicketChanges struct {
	Title         *string
	Queue         *string
	Priority      *string
	Type          *string
	State         *string
	CustomerUser  *string
	DynamicFields map[string]any
	Notes         []string
}

// IsEmpty reports whether the update carries no ticket changes.
func (c TicketChanges) IsEmpty() bool {
	return c.Title == nil && c.Queue == nil && c.Priority == nil && c.Type == nil &&
		c.State == nil && c.CustomerUser == nil && len(c.DynamicFields) == 0 && len(c.Notes) == 0
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	attempts := deps.IDMaxAttempts
	if attempts <= 0 {
		attempts = defaultIDMaxAttempts
	}
	return &TicketService{
		store:       deps.Store,
		ids:         deps.IDs,
		audit:       deps.Audit,
		maxAttempts: attempts,
		clock:       time.Now,
	}
}

func (f *TicketFields) normalize() error {
	required := []struct {
		name  string
		value *string
	}{
		{"Title", &f.Title},
		{"Queue", &f.Queue},
		{"Priority", &f.Priority},
		{"Type", &f.Type},
		{"State", &f.State},
		{"CustomerUser", &f.CustomerUser},
	}
	var missing []string
	for _, field := range required {
		*field.value = strings.TrimSpace(*field.value)
		if *field.value == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return apperrors.NewInvalidTicketFields(
			"missing required fields: "+strings.Join(missing, ", "),
			map[string]any{"Missing": missing})
	}
	return nil
}

func (c TicketChanges) validate() error {
	var blank []string
	for name, value := range map[string]*string{
		"Title":        c.Title,
		"Queue":        c.Queue,
		"Priority":     c.Priority,
		"Type":         c.Type,
		"State":        c.State,
		"CustomerUser": c.CustomerUser,
	} {
		if value != nil && strings.TrimSpace(*value) == "" {
			blank = append(blank, name)
		}
	}
	if len(blank) > 0 {
		return apperrors.NewInvalidTicketFields("fields cannot be blank", map[string]any{"Blank": blank})
	}
	return nil
}

func (c TicketChanges) apply(ticket *domain.Ticket) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&ticket.Title, c.Title)
	set(&ticket.Queue, c.Queue)
	set(&ticket.Priority, c.Priority)
	set(&ticket.Type, c.Type)
	set(&ticket.State, c.State)
	set(&ticket.CustomerUser, c.CustomerUser)
	if len(c.DynamicFields) > 0 {
		ticket.MergeDynamicFields(c.DynamicFields)
	}
	ticket.Notes = append(ticket.Notes, c.Notes...)
}

func (s *TicketService) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

// CreateTicket validates fields and persists a new ticket, optionally with a
// first article. A ticket number collision regenerates identifiers and retries
// the whole transaction.
func (s *TicketService) CreateTicket(ctx context.Context, fields TicketFields, article *ArticleInput, pb domain.PlaybookContext) (*domain.Ticket, *domain.Article, error) {
	if err := fields.normalize(); err != nil {
		return nil, nil, err
	}
	if article != nil {
		if err := article.normalize(); err != nil {
			return nil, nil, err
		}
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		ticket, created, entry, err := s.createOnce(ctx, fields, article, pb)
		if err == nil {
			s.audit.Committed(ctx, entry, ticket.TicketNumber)
			return ticket, created, nil
		}
		if !errors.Is(err, repository.ErrDuplicateKey) {
			err = storeError(err, "")
			s.audit.RecordFailure(ctx, domain.AuditActionTicketCreate, "", pb, err)
			return nil, nil, err
		}
		lastErr = err
	}

	err := apperrors.NewIdentifierExhausted(s.maxAttempts, lastErr)
	s.audit.RecordFailure(ctx, domain.AuditActionTicketCreate, "", pb, err)
	return nil, nil, err
}

func (s *TicketService) createOnce(ctx context.Context, fields TicketFields, input *ArticleInput, pb domain.PlaybookContext) (*domain.Ticket, *domain.Article, *domain.AuditEntry, error) {
	now := s.now()
	ticket := &domain.Ticket{
		TicketID:      s.ids.NewTicketID(),
		TicketNumber:  s.ids.NewTicketNumber(),
		Title:         fields.Title,
		Queue:         fields.Queue,
		Priority:      fields.Priority,
		Type:          fields.Type,
		State:         fields.State,
		CustomerUser:  fields.CustomerUser,
		DynamicFields: map[string]any{},
		Notes:         []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	ticket.MergeDynamicFields(fields.DynamicFields)

	var (
		article *domain.Article
		entry   *domain.AuditEntry
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Tickets.Create(ctx, ticket); err != nil {
			return err
		}
		details := map[string]any{"TicketNumber": ticket.TicketNumber}
		if input != nil {
			var err error
			if article, err = insertArticle(ctx, repos, s.ids, ticket, *input, now); err != nil {
				return err
			}
			details["ArticleID"] = article.ArticleID
		}
		var err error
		entry, err = s.audit.Append(ctx, repos, domain.AuditActionTicketCreate, ticket, details, pb)
		return err
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return ticket, article, entry, nil
}

// GetTicket returns the ticket and its articles in creation order.
func (s *TicketService) GetTicket(ctx context.Context, ticketNumber string) (*domain.Ticket, []domain.Article, error) {
	var (
		ticket   *domain.Ticket
		articles []domain.Article
	)
	err := s.store.Read(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		if ticket, err = repos.Tickets.GetByNumber(ctx, ticketNumber); err != nil {
			return err
		}
		articles, err = repos.Articles.ListByTicket(ctx, ticket.TicketID)
		return err
	})
	if err != nil {
		return nil, nil, storeError(err, ticketNumber)
	}
	return ticket, articles, nil
}

// UpdateTicket overwrites the given fields, merges dynamic fields, appends
// notes and optionally an article, all under the ticket's row lock.
func (s *TicketService) UpdateTicket(ctx context.Context, ticketNumber string, changes TicketChanges, article *ArticleInput, pb domain.PlaybookContext) (*domain.Ticket, *domain.Article, error) {
	if changes.IsEmpty() && article == nil {
		return nil, nil, apperrors.NewInvalidRequest("nothing to update", map[string]any{"TicketNumber": ticketNumber})
	}
	if err := changes.validate(); err != nil {
		return nil, nil, err
	}
	if article != nil {
		if err := article.normalize(); err != nil {
			return nil, nil, err
		}
	}

	var (
		ticket  *domain.Ticket
		created *domain.Article
		entry   *domain.AuditEntry
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		if ticket, err = repos.Tickets.GetByNumberForUpdate(ctx, ticketNumber); err != nil {
			return err
		}
		now := s.now()
		changes.apply(ticket)
		details := map[string]any{"TicketNumber": ticket.TicketNumber}
		if article != nil {
			if created, err = insertArticle(ctx, repos, s.ids, ticket, *article, now); err != nil {
				return err
			}
			details["ArticleID"] = created.ArticleID
		}
		ticket.Touch(now)
		if err := repos.Tickets.Update(ctx, ticket); err != nil {
			return err
		}
		entry, err = s.audit.Append(ctx, repos, domain.AuditActionTicketUpdate, ticket, details, pb)
		return err
	})
	if err != nil {
		err = storeError(err, ticketNumber)
		s.audit.RecordFailure(ctx, domain.AuditActionTicketUpdate, ticketNumber, pb, err)
		return nil, nil, err
	}
	s.audit.Committed(ctx, entry, ticket.TicketNumber)
	return ticket, created, nil
}

// MergeDynamicFields shallow-merges patch into the ticket's dynamic fields and
// returns the merged mapping.
func (s *TicketService) MergeDynamicFields(ctx context.Context, ticketNumber string, patch map[string]any, pb domain.PlaybookContext) (*domain.Ticket, error) {
	var (
		ticket *domain.Ticket
		entry  *domain.AuditEntry
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		if ticket, err = repos.Tickets.GetByNumberForUpdate(ctx, ticketNumber); err != nil {
			return err
		}
		ticket.MergeDynamicFields(patch)
		ticket.Touch(s.now())
		if err := repos.Tickets.Update(ctx, ticket); err != nil {
			return err
		}
		keys := make([]string, 0, len(patch))
		for k := range patch {
			keys = append(keys, k)
		}
		entry, err = s.audit.Append(ctx, repos, domain.AuditActionContextMerge, ticket,
			map[string]any{"TicketNumber": ticket.TicketNumber, "Keys": keys}, pb)
		return err
	})
	if err != nil {
		err = storeError(err, ticketNumber)
		s.audit.RecordFailure(ctx, domain.AuditActionContextMerge, ticketNumber, pb, err)
		return nil, err
	}
	s.audit.Committed(ctx, entry, ticket.TicketNumber)
	return ticket, nil
}

// SearchTickets returns matching ticket IDs ordered by creation time. No
// match is an empty slice.
func (s *TicketService) SearchTickets(ctx context.Context, filter repository.TicketFilter) ([]string, error) {
	var ids []string
	err := s.store.Read(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		ids, err = repos.Tickets.Search(ctx, filter)
		return err
	})
	if err != nil {
		return nil, storeError(err, "")
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
