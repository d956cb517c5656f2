package service

import (
	"context"
	"strings"

	"github.com/spec-kit/ticket-gateway/internal/auth"
	"github.com/spec-kit/ticket-gateway/internal/domain"
	"github.com/spec-kit/ticket-gateway/internal/observability"
	"github.com/spec-kit/ticket-gateway/internal/repository"
	apperrors "github.com/spec-kit/ticket-gateway/pkg/util/errorutil"
)

// Credentials are whatever the caller presented: a session token, a
// user/password pair, or both.
type Credentials struct {
	SessionID string
	User      string
	Password  string
}

// Gateway is the protocol facade. It enforces the session policy and then
// dispatches to the stores.
type Gateway struct {
	sessions  *SessionService
	tickets   *TicketService
	articles  *ArticleService
	validator auth.CredentialValidator
	policy    auth.SessionPolicy
	metrics   *observability.Metrics
}

// GatewayDependencies bundles the facade's collaborators.
type GatewayDependencies struct {
	Sessions  *SessionService
	Tickets   *TicketService
	Articles  *ArticleService
	Validator auth.CredentialValidator
	Policy    auth.SessionPolicy
	Metrics   *observability.Metrics
}

// NewGateway constructs the facade.
func NewGateway(deps GatewayDependencies) *Gateway {
	return &Gateway{
		sessions:  deps.Sessions,
		tickets:   deps.Tickets,
		articles:  deps.Articles,
		validator: deps.Validator,
		policy:    deps.Policy,
		metrics:   deps.Metrics,
	}
}

func (g *Gateway) observe(op auth.Operation, err error) {
	outcome := "ok"
	if err != nil {
		outcome = apperrors.Code(err)
	}
	g.metrics.RecordOperation(string(op), outcome)
}

// authorize applies the session policy for op. Nothing past this point runs
// for an unauthenticated caller.
func (g *Gateway) authorize(ctx context.Context, op auth.Operation, creds Credentials) error {
	if !g.policy.RequiresSession(op) {
		return nil
	}
	return g.requireSession(ctx, creds.SessionID)
}

func (g *Gateway) requireSession(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return apperrors.NewAuthenticationFailed("missing session")
	}
	ok, err := g.sessions.ValidateSession(ctx, token)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewAuthenticationFailed("invalid or expired session")
	}
	return nil
}

func requireTicketNumber(ticketNumber string) (string, error) {
	ticketNumber = strings.TrimSpace(ticketNumber)
	if ticketNumber == "" {
		return "", apperrors.NewInvalidRequest("TicketNumber is required", nil)
	}
	return ticketNumber, nil
}

// CreateSession opens a session for a user/password pair.
func (g *Gateway) CreateSession(ctx context.Context, user, password string, pb domain.PlaybookContext) (session *domain.Session, err error) {
	defer func() { g.observe(auth.OpCreateSession, err) }()
	return g.sessions.CreateSession(ctx, user, password, pb)
}

// CreateTicket creates a ticket with an optional first article.
func (g *Gateway) CreateTicket(ctx context.Context, creds Credentials, fields TicketFields, article *ArticleInput, pb domain.PlaybookContext) (ticket *domain.Ticket, created *domain.Article, err error) {
	defer func() { g.observe(auth.OpCreateTicket, err) }()
	if err = g.authorize(ctx, auth.OpCreateTicket, creds); err != nil {
		return nil, nil, err
	}
	return g.tickets.CreateTicket(ctx, fields, article, pb)
}

// UpdateTicket changes ticket fields and/or appends an article. An update
// that carries only an article is recorded as an article append.
func (g *Gateway) UpdateTicket(ctx context.Context, creds Credentials, ticketNumber string, changes TicketChanges, article *ArticleInput, pb domain.PlaybookContext) (ticket *domain.Ticket, created *domain.Article, err error) {
	defer func() { g.observe(auth.OpUpdateTicket, err) }()
	if err = g.authorize(ctx, auth.OpUpdateTicket, creds); err != nil {
		return nil, nil, err
	}
	if ticketNumber, err = requireTicketNumber(ticketNumber); err != nil {
		return nil, nil, err
	}
	if changes.IsEmpty() && article != nil {
		return g.articles.AddArticle(ctx, ticketNumber, *article, pb)
	}
	return g.tickets.UpdateTicket(ctx, ticketNumber, changes, article, pb)
}

// GetTicket returns a ticket and its articles.
func (g *Gateway) GetTicket(ctx context.Context, creds Credentials, ticketNumber string) (ticket *domain.Ticket, articles []domain.Article, err error) {
	defer func() { g.observe(auth.OpGetTicket, err) }()
	if err = g.authorize(ctx, auth.OpGetTicket, creds); err != nil {
		return nil, nil, err
	}
	if ticketNumber, err = requireTicketNumber(ticketNumber); err != nil {
		return nil, nil, err
	}
	return g.tickets.GetTicket(ctx, ticketNumber)
}

// SearchTickets returns matching ticket IDs.
func (g *Gateway) SearchTickets(ctx context.Context, creds Credentials, filter repository.TicketFilter) (ids []string, err error) {
	defer func() { g.observe(auth.OpSearchTickets, err) }()
	if err = g.authorize(ctx, auth.OpSearchTickets, creds); err != nil {
		return nil, err
	}
	return g.tickets.SearchTickets(ctx, filter)
}

// AddContext merges detection context into a ticket's dynamic fields. A valid
// session or a user/password pair is accepted.
func (g *Gateway) AddContext(ctx context.Context, creds Credentials, ticketNumber string, patch map[string]any, pb domain.PlaybookContext) (ticket *domain.Ticket, err error) {
	defer func() { g.observe(auth.OpAddContext, err) }()
	if err = g.authorizeContext(ctx, creds); err != nil {
		return nil, err
	}
	if ticketNumber, err = requireTicketNumber(ticketNumber); err != nil {
		return nil, err
	}
	if patch == nil {
		return nil, apperrors.NewInvalidRequest("Context is required", nil)
	}
	return g.tickets.MergeDynamicFields(ctx, ticketNumber, patch, pb)
}

func (g *Gateway) authorizeContext(ctx context.Context, creds Credentials) error {
	if creds.SessionID != "" {
		if err := g.requireSession(ctx, creds.SessionID); err == nil || creds.User == "" {
			return err
		}
	}
	if creds.User == "" || creds.Password == "" {
		return apperrors.NewAuthenticationFailed("session or User and Password required")
	}
	if err := g.validator.Validate(ctx, creds.User, creds.Password); err != nil {
		return apperrors.NewAuthenticationFailed("invalid credentials")
	}
	return nil
}
