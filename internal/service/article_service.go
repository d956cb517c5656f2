package service

import (
	"context"
	"strings"
	"time"

	"github.com/spec-kit/ticket-gateway/internal/domain"
	"github.com/spec-kit/ticket-gateway/internal/identifier"
	"github.com/spec-kit/ticket-gateway/internal/repository"
	apperrors "github.com/spec-kit/ticket-gateway/pkg/util/errorutil"
)

// ArticleInput is an article to append to a ticket.
type ArticleInput struct {
	Subject  string
	Body     string
	MimeType string
}

func (in *ArticleInput) normalize() error {
	in.Subject = strings.TrimSpace(in.Subject)
	in.MimeType = strings.TrimSpace(in.MimeType)
	var missing []string
	if in.Subject == "" {
		missing = append(missing, "Subject")
	}
	if strings.TrimSpace(in.Body) == "" {
		missing = append(missing, "Body")
	}
	if len(missing) > 0 {
		return apperrors.NewInvalidArticleFields(
			"missing required fields: "+strings.Join(missing, ", "),
			map[string]any{"Missing": missing})
	}
	if in.MimeType == "" {
		in.MimeType = domain.DefaultMimeType
	}
	return nil
}

// ArticleService appends articles to existing tickets.
type ArticleService struct {
	store repository.Store
	ids   identifier.Generator
	audit *AuditLog
	clock func() time.Time
}

// NewArticleService constructs the service.
func NewArticleService(store repository.Store, ids identifier.Generator, audit *AuditLog) *ArticleService {
	return &ArticleService{store: store, ids: ids, audit: audit, clock: time.Now}
}

// AddArticle inserts the article and refreshes the ticket's UpdatedAt in one
// transaction, holding the ticket row lock so concurrent appends serialize.
func (s *ArticleService) AddArticle(ctx context.Context, ticketNumber string, input ArticleInput, pb domain.PlaybookContext) (*domain.Ticket, *domain.Article, error) {
	if err := input.normalize(); err != nil {
		return nil, nil, err
	}

	var (
		ticket  *domain.Ticket
		article *domain.Article
		entry   *domain.AuditEntry
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		if ticket, err = repos.Tickets.GetByNumberForUpdate(ctx, ticketNumber); err != nil {
			return err
		}
		now := s.clock().UTC().Truncate(time.Microsecond)
		if article, err = insertArticle(ctx, repos, s.ids, ticket, input, now); err != nil {
			return err
		}
		ticket.Touch(now)
		if err := repos.Tickets.Update(ctx, ticket); err != nil {
			return err
		}
		entry, err = s.audit.Append(ctx, repos, domain.AuditActionArticleAdd, ticket,
			map[string]any{"TicketNumber": ticket.TicketNumber, "ArticleID": article.ArticleID}, pb)
		return err
	})
	if err != nil {
		err = storeError(err, ticketNumber)
		s.audit.RecordFailure(ctx, domain.AuditActionArticleAdd, ticketNumber, pb, err)
		return nil, nil, err
	}
	s.audit.Committed(ctx, entry, ticket.TicketNumber)
	return ticket, article, nil
}

func insertArticle(ctx context.Context, repos repository.Repositories, ids identifier.Generator, ticket *domain.Ticket, input ArticleInput, now time.Time) (*domain.Article, error) {
	article := &domain.Article{
		ArticleID:    ids.NewArticleID(),
		TicketID:     ticket.TicketID,
		TicketNumber: ticket.TicketNumber,
		Subject:      input.Subject,
		Body:         input.Body,
		MimeType:     input.MimeType,
		CreatedAt:    now,
	}
	if err := repos.Articles.Create(ctx, article); err != nil {
		return nil, err
	}
	return article, nil
}
