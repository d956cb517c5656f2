package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-gateway/internal/auth"
	"github.com/spec-kit/ticket-gateway/internal/domain"
	apperrors "github.com/spec-kit/ticket-gateway/pkg/util/errorutil"
)

func TestArticleService_UnknownTicketCreatesNothing(t *testing.T) {
	f := newFixture(t, auth.SessionPolicy{})

	_, _, err := f.articles.AddArticle(context.Background(), "MOCK-404", ArticleInput{Subject: "s", Body: "b"}, domain.PlaybookContext{})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeTicketNotFound))
	assert.Zero(t, f.store.ArticleCount())

	entries := f.store.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditActionArticleAdd, entries[0].Action)
	assert.False(t, entries[0].Success)
}

func TestArticleService_RejectsMissingFields(t *testing.T) {
	f := newFixture(t, auth.SessionPolicy{})

	for _, input := range []ArticleInput{{Body: "b"}, {Subject: "s", Body: "  "}, {}} {
		_, _, err := f.articles.AddArticle(context.Background(), "MOCK-1", input, domain.PlaybookContext{})
		assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidArticleFields))
	}
	assert.Zero(t, f.store.Calls())
	assert.Empty(t, f.store.AuditEntries())
}

func TestArticleService_ConcurrentAppends(t *testing.T) {
	f := newFixture(t, auth.SessionPolicy{})
	ctx := context.Background()
	ticket := f.createTicket(t, Credentials{})
	f.articles.clock = func() time.Time { return ticket.CreatedAt }

	var wg sync.WaitGroup
	for _, subject := range []string{"first", "second"} {
		wg.Add(1)
		go func(subject string) {
			defer wg.Done()
			_, _, err := f.articles.AddArticle(ctx, ticket.TicketNumber, ArticleInput{Subject: subject, Body: "body"}, domain.PlaybookContext{})
			assert.NoError(t, err)
		}(subject)
	}
	wg.Wait()

	got, articles, err := f.tickets.GetTicket(ctx, ticket.TicketNumber)
	require.NoError(t, err)
	require.Len(t, articles, 2)
	assert.ElementsMatch(t, []string{"first", "second"}, []string{articles[0].Subject, articles[1].Subject})
	assert.Equal(t, ticket.UpdatedAt.Add(2*time.Microsecond), got.UpdatedAt, "one advance per append")

	var committed []string
	for _, e := range f.store.AuditEntries() {
		if e.Action == domain.AuditActionArticleAdd {
			committed = append(committed, e.Details["ArticleID"].(string))
		}
	}
	assert.Equal(t, []string{articles[0].ArticleID, articles[1].ArticleID}, committed, "articles are ordered by commit")
}
