//go:build integration

package repository_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-gateway/internal/domain"
	"github.com/spec-kit/ticket-gateway/internal/identifier"
	"github.com/spec-kit/ticket-gateway/internal/persistence"
	"github.com/spec-kit/ticket-gateway/internal/repository"
	"github.com/spec-kit/ticket-gateway/internal/service"
)

// setupPostgres starts a disposable Postgres and applies the embedded migrations.
func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "gateway",
			"POSTGRES_PASSWORD": "gateway",
			"POSTGRES_DB":       "gateway",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgC.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://gateway:gateway@%s:%s/gateway?sslmode=disable", host, port.Port())
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, persistence.RunMigrations(ctx, pool, zap.NewNop()))
	// second run must be a no-op
	require.NoError(t, persistence.RunMigrations(ctx, pool, zap.NewNop()))
	return pool
}

func newTicket(number string, now time.Time) *domain.Ticket {
	return &domain.Ticket{
		TicketID:      uuid.NewString(),
		TicketNumber:  number,
		Title:         "Suspicious login from 203.0.113.7",
		Queue:         "SOC::Tier1",
		Priority:      "3 normal",
		Type:          "Incident",
		State:         "new",
		CustomerUser:  "soc@example.com",
		DynamicFields: map[string]any{"SourceIP": "203.0.113.7"},
		Notes:         []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestPostgresStore_TicketLifecycle(t *testing.T) {
	pool := setupPostgres(t)
	store := repository.NewPostgresStore(pool, 5*time.Second)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	ticket := newTicket("2026101500000001", now)
	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Tickets.Create(ctx, ticket); err != nil {
			return err
		}
		return repos.Articles.Create(ctx, &domain.Article{
			ArticleID: uuid.NewString(),
			TicketID:  ticket.TicketID,
			Subject:   "Alert",
			Body:      "first",
			MimeType:  domain.DefaultMimeType,
			CreatedAt: now,
		})
	}))

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		locked, err := repos.Tickets.GetByNumberForUpdate(ctx, ticket.TicketNumber)
		if err != nil {
			return err
		}
		locked.State = "open"
		locked.MergeDynamicFields(map[string]any{"Verdict": "malicious"})
		locked.Notes = append(locked.Notes, "escalated")
		locked.Touch(now)
		return repos.Tickets.Update(ctx, locked)
	}))

	var got *domain.Ticket
	var articles []domain.Article
	require.NoError(t, store.Read(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		if got, err = repos.Tickets.GetByNumber(ctx, ticket.TicketNumber); err != nil {
			return err
		}
		articles, err = repos.Articles.ListByTicket(ctx, ticket.TicketID)
		return err
	}))

	assert.Equal(t, "open", got.State)
	assert.Equal(t, "203.0.113.7", got.DynamicFields["SourceIP"])
	assert.Equal(t, "malicious", got.DynamicFields["Verdict"])
	assert.Equal(t, []string{"escalated"}, got.Notes)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))
	require.Len(t, articles, 1)
	assert.Equal(t, ticket.TicketNumber, articles[0].TicketNumber)
}

func TestPostgresStore_DuplicateTicketNumber(t *testing.T) {
	pool := setupPostgres(t)
	store := repository.NewPostgresStore(pool, 5*time.Second)
	ctx := context.Background()
	now := time.Now().UTC()

	create := func(tk *domain.Ticket) error {
		return store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
			return repos.Tickets.Create(ctx, tk)
		})
	}

	require.NoError(t, create(newTicket("2026101500000002", now)))
	err := create(newTicket("2026101500000002", now))
	assert.ErrorIs(t, err, repository.ErrDuplicateKey)
}

func TestPostgresStore_RollbackDiscardsWrites(t *testing.T) {
	pool := setupPostgres(t)
	store := repository.NewPostgresStore(pool, 5*time.Second)
	ctx := context.Background()
	ticket := newTicket("2026101500000003", time.Now().UTC())

	err := store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Tickets.Create(ctx, ticket); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	require.Error(t, err)

	err = store.Read(ctx, func(ctx context.Context, repos repository.Repositories) error {
		_, err := repos.Tickets.GetByNumber(ctx, ticket.TicketNumber)
		return err
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPostgresStore_SearchAndAudit(t *testing.T) {
	pool := setupPostgres(t)
	store := repository.NewPostgresStore(pool, 5*time.Second)
	ctx := context.Background()
	now := time.Now().UTC()

	first := newTicket("2026101500000004", now)
	second := newTicket("2026101500000005", now.Add(time.Second))
	second.Queue = "SOC::Tier2"
	second.Title = "Malware beacon"

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		for _, tk := range []*domain.Ticket{first, second} {
			if err := repos.Tickets.Create(ctx, tk); err != nil {
				return err
			}
		}
		return repos.Audit.Append(ctx, &domain.AuditEntry{
			Action:    domain.AuditActionTicketCreate,
			TicketID:  &first.TicketID,
			Details:   map[string]any{"TicketNumber": first.TicketNumber},
			Timestamp: now,
			Playbook:  "phishing-triage",
			Stage:     2,
			Success:   true,
		})
	}))

	queue := "SOC::Tier2"
	title := "BEACON"
	var byQueue, byTitle []string
	var entries []domain.AuditEntry
	require.NoError(t, store.Read(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		if byQueue, err = repos.Tickets.Search(ctx, repository.TicketFilter{Queue: &queue}); err != nil {
			return err
		}
		if byTitle, err = repos.Tickets.Search(ctx, repository.TicketFilter{TitleLike: &title}); err != nil {
			return err
		}
		entries, err = repos.Audit.ListByTicket(ctx, first.TicketID)
		return err
	}))

	assert.Equal(t, []string{second.TicketID}, byQueue)
	assert.Equal(t, []string{second.TicketID}, byTitle)
	require.Len(t, entries, 1)
	assert.Equal(t, "phishing-triage", entries[0].Playbook)
	assert.Equal(t, 2, entries[0].Stage)
	assert.NotZero(t, entries[0].ID)
}

func TestPostgresStore_SessionsExpire(t *testing.T) {
	pool := setupPostgres(t)
	store := repository.NewPostgresStore(pool, 5*time.Second)
	ctx := context.Background()
	now := time.Now().UTC()

	live := &domain.Session{ID: uuid.NewString(), User: "zsoar", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	stale := &domain.Session{ID: uuid.NewString(), User: "zsoar", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}

	var purged int64
	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		for _, s := range []*domain.Session{live, stale} {
			if err := repos.Sessions.Create(ctx, s); err != nil {
				return err
			}
		}
		var err error
		purged, err = repos.Sessions.DeleteExpired(ctx, now)
		return err
	}))
	assert.Equal(t, int64(1), purged)

	err := store.Read(ctx, func(ctx context.Context, repos repository.Repositories) error {
		got, err := repos.Sessions.GetByID(ctx, live.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, "zsoar", got.User)
		_, err = repos.Sessions.GetByID(ctx, stale.ID)
		return err
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPostgresStore_ConcurrentMutationsSerializePerTicket(t *testing.T) {
	pool := setupPostgres(t)
	store := repository.NewPostgresStore(pool, 30*time.Second)
	ctx := context.Background()

	// UpdatedAt starts ahead of the wall clock, so every Touch advances it by
	// exactly one microsecond and a lost update shows up in the final value.
	start := time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond)
	ticket := newTicket("2026101500000006", start)
	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		return repos.Tickets.Create(ctx, ticket)
	}))

	ids := identifier.NewGenerator("MOCK-")
	audit := service.NewAuditLog(store, nil, zap.NewNop())
	articles := service.NewArticleService(store, ids, audit)
	tickets := service.NewTicketService(service.TicketDependencies{Store: store, IDs: ids, Audit: audit})

	const workers = 12
	var wg sync.WaitGroup
	errs := make(chan error, 2*workers)
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, _, err := articles.AddArticle(ctx, ticket.TicketNumber, service.ArticleInput{
				Subject: fmt.Sprintf("update %d", i),
				Body:    "body",
			}, domain.PlaybookContext{})
			errs <- err
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := tickets.MergeDynamicFields(ctx, ticket.TicketNumber,
				map[string]any{fmt.Sprintf("key%02d", i): i}, domain.PlaybookContext{})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var (
		got     *domain.Ticket
		listed  []domain.Article
		entries []domain.AuditEntry
	)
	require.NoError(t, store.Read(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		if got, err = repos.Tickets.GetByNumber(ctx, ticket.TicketNumber); err != nil {
			return err
		}
		if listed, err = repos.Articles.ListByTicket(ctx, ticket.TicketID); err != nil {
			return err
		}
		entries, err = repos.Audit.ListByTicket(ctx, ticket.TicketID)
		return err
	}))

	assert.True(t, got.UpdatedAt.Equal(start.Add(2*workers*time.Microsecond)),
		"updated_at %s, want %s", got.UpdatedAt, start.Add(2*workers*time.Microsecond))

	for i := 0; i < workers; i++ {
		assert.Contains(t, got.DynamicFields, fmt.Sprintf("key%02d", i))
	}
	assert.Equal(t, "203.0.113.7", got.DynamicFields["SourceIP"])

	require.Len(t, listed, workers)
	rows, err := pool.Query(ctx, `SELECT id, seq FROM articles WHERE ticket_id=$1 ORDER BY seq`, ticket.TicketID)
	require.NoError(t, err)
	var lastSeq int64
	for i := 0; rows.Next(); i++ {
		var id string
		var seq int64
		require.NoError(t, rows.Scan(&id, &seq))
		assert.Equal(t, listed[i].ArticleID, id)
		assert.Greater(t, seq, lastSeq)
		lastSeq = seq
	}
	require.NoError(t, rows.Err())
	rows.Close()

	assert.Len(t, entries, 2*workers)
	for _, e := range entries {
		assert.True(t, e.Success)
	}
}

func TestPostgresStore_DeletingTicketCascadesToArticles(t *testing.T) {
	pool := setupPostgres(t)
	store := repository.NewPostgresStore(pool, 5*time.Second)
	ctx := context.Background()
	now := time.Now().UTC()

	ticket := newTicket("2026101500000007", now)
	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Tickets.Create(ctx, ticket); err != nil {
			return err
		}
		for i := 0; i < 3; i++ {
			if err := repos.Articles.Create(ctx, &domain.Article{
				ArticleID: uuid.NewString(),
				TicketID:  ticket.TicketID,
				Subject:   "s",
				Body:      "b",
				MimeType:  domain.DefaultMimeType,
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}
		return repos.Audit.Append(ctx, &domain.AuditEntry{
			Action:    domain.AuditActionTicketCreate,
			TicketID:  &ticket.TicketID,
			Details:   map[string]any{},
			Timestamp: now,
			Success:   true,
		})
	}))

	_, err := pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, ticket.TicketID)
	require.NoError(t, err)

	var articles int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM articles WHERE ticket_id=$1`, ticket.TicketID).Scan(&articles))
	assert.Zero(t, articles)

	var orphaned int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM audit_log WHERE ticket_id IS NULL AND action=$1`, domain.AuditActionTicketCreate).Scan(&orphaned))
	assert.Equal(t, 1, orphaned)
}

func TestPostgresStore_TitleSearchTreatsWildcardsLiterally(t *testing.T) {
	pool := setupPostgres(t)
	store := repository.NewPostgresStore(pool, 5*time.Second)
	ctx := context.Background()
	now := time.Now().UTC()

	literal := newTicket("2026101500000008", now)
	literal.Title = "Phish: 50%_off voucher"
	lookalike := newTicket("2026101500000009", now.Add(time.Second))
	lookalike.Title = "Phish: 500 off voucher"

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		for _, tk := range []*domain.Ticket{literal, lookalike} {
			if err := repos.Tickets.Create(ctx, tk); err != nil {
				return err
			}
		}
		return nil
	}))

	title := "50%_OFF"
	var found []string
	require.NoError(t, store.Read(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		found, err = repos.Tickets.Search(ctx, repository.TicketFilter{TitleLike: &title})
		return err
	}))
	assert.Equal(t, []string{literal.TicketID}, found)
}
