package repository

import (
	"context"
	"time"

	"github.com/spec-kit/ticket-gateway/internal/domain"
)

// SessionRepository defines persistence access for gateway sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type sessionRepository struct {
	q Querier
}

// NewSessionRepository returns a Postgres-backed implementation.
func NewSessionRepository(q Querier) SessionRepository {
	return &sessionRepository{q: q}
}

func (r *sessionRepository) Create(ctx context.Context, session *domain.Session) error {
	const query = `
        INSERT INTO sessions (id, user_login, created_at, expires_at)
        VALUES ($1, $2, $3, $4)`

	_, err := r.q.Exec(ctx, query,
		session.ID,
		session.User,
		session.CreatedAt,
		session.ExpiresAt,
	)
	return translate(err)
}

func (r *sessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	const query = `
        SELECT id, user_login, created_at, expires_at
        FROM sessions WHERE id=$1`

	var session domain.Session
	if err := r.q.QueryRow(ctx, query, id).Scan(
		&session.ID,
		&session.User,
		&session.CreatedAt,
		&session.ExpiresAt,
	); err != nil {
		return nil, translate(err)
	}
	return &session, nil
}

func (r *sessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	cmd, err := r.q.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, translate(err)
	}
	return cmd.RowsAffected(), nil
}
