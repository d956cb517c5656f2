package repository

import (
	"context"

	"github.com/spec-kit/ticket-gateway/internal/domain"
)

// ArticleRepository manages ticket thread articles.
type ArticleRepository interface {
	Create(ctx context.Context, article *domain.Article) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Article, error)
}

type articleRepository struct {
	q Querier
}

// NewArticleRepository builds repository.
func NewArticleRepository(q Querier) ArticleRepository {
	return &articleRepository{q: q}
}

func (r *articleRepository) Create(ctx context.Context, article *domain.Article) error {
	const query = `
        INSERT INTO articles (id, ticket_id, subject, body, mime_type, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := r.q.Exec(ctx, query,
		article.ArticleID,
		article.TicketID,
		article.Subject,
		article.Body,
		article.MimeType,
		article.CreatedAt,
	)
	return translate(err)
}

func (r *articleRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Article, error) {
	const query = `
        SELECT a.id, a.ticket_id, t.ticket_number, a.subject, a.body, a.mime_type, a.created_at
        FROM articles a JOIN tickets t ON t.id = a.ticket_id
        WHERE a.ticket_id=$1 ORDER BY a.seq ASC`
	rows, err := r.q.Query(ctx, query, ticketID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	result := []domain.Article{}
	for rows.Next() {
		var article domain.Article
		if err := rows.Scan(
			&article.ArticleID,
			&article.TicketID,
			&article.TicketNumber,
			&article.Subject,
			&article.Body,
			&article.MimeType,
			&article.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, article)
	}
	return result, rows.Err()
}
