package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/ticket-gateway/internal/auth"
	"github.com/spec-kit/ticket-gateway/internal/domain"
	"github.com/spec-kit/ticket-gateway/internal/events"
	"github.com/spec-kit/ticket-gateway/internal/identifier"
	"github.com/spec-kit/ticket-gateway/internal/observability"
	"github.com/spec-kit/ticket-gateway/internal/repository/repotest"
)

const (
	testUser     = "zsoar"
	testPassword = "correct-horse"
)

type fixture struct {
	store    *repotest.Store
	gateway  *Gateway
	sessions *SessionService
	tickets  *TicketService
	articles *ArticleService

	mu        sync.Mutex
	published []events.Event
}

func (f *fixture) events() []events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]events.Event(nil), f.published...)
}

func newFixture(t *testing.T, policy auth.SessionPolicy) *fixture {
	t.Helper()
	f := &fixture{store: repotest.NewStore()}

	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	dispatcher.Subscribe(events.EventAuditRecorded, func(_ context.Context, e events.Event) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.published = append(f.published, e)
		return nil
	})

	validator, err := auth.NewStaticValidatorFromPassword(testUser, testPassword, bcrypt.MinCost)
	require.NoError(t, err)

	ids := identifier.NewGenerator("MOCK-")
	audit := NewAuditLog(f.store, dispatcher, zap.NewNop())
	f.sessions = NewSessionService(SessionDependencies{
		Store:     f.store,
		Validator: validator,
		Tokens:    auth.NewTokenManager("test-secret", "ticket-gateway"),
		IDs:       ids,
		Audit:     audit,
		TTL:       time.Hour,
	})
	f.tickets = NewTicketService(TicketDependencies{Store: f.store, IDs: ids, Audit: audit, IDMaxAttempts: 3})
	f.articles = NewArticleService(f.store, ids, audit)
	f.gateway = NewGateway(GatewayDependencies{
		Sessions:  f.sessions,
		Tickets:   f.tickets,
		Articles:  f.articles,
		Validator: validator,
		Policy:    policy,
		Metrics:   observability.NewMetrics(),
	})
	return f
}

func (f *fixture) login(t *testing.T) Credentials {
	t.Helper()
	session, err := f.gateway.CreateSession(context.Background(), testUser, testPassword, domain.PlaybookContext{})
	require.NoError(t, err)
	return Credentials{SessionID: session.SessionID}
}

func validFields() TicketFields {
	return TicketFields{
		Title:        "T1",
		Queue:        "Security",
		Priority:     "3 normal",
		Type:         "Detection",
		State:        "new",
		CustomerUser: "u1",
	}
}

func (f *fixture) createTicket(t *testing.T, creds Credentials) *domain.Ticket {
	t.Helper()
	ticket, _, err := f.gateway.CreateTicket(context.Background(), creds, validFields(), nil, domain.PlaybookContext{})
	require.NoError(t, err)
	return ticket
}

func strPtr(s string) *string { return &s }
