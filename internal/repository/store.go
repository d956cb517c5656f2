package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicateKey is returned when an insert violates a unique constraint.
	ErrDuplicateKey = errors.New("repository: duplicate key")
)

const uniqueViolation = "23505"

// Querier is the subset of pgx shared by pools and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repositories bundles the repositories bound to one connection or transaction.
type Repositories struct {
	Tickets  TicketRepository
	Articles ArticleRepository
	Sessions SessionRepository
	Audit    AuditRepository
}

// Store hands out repositories. Read runs fn outside a transaction;
// WithinTx commits when fn returns nil and rolls back otherwise. Both bound
// the call with the store's timeout.
type Store interface {
	Read(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// PostgresStore is the pgx-backed Store.
type PostgresStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewPostgresStore wraps pool. A zero timeout disables the bound.
func NewPostgresStore(pool *pgxpool.Pool, timeout time.Duration) *PostgresStore {
	return &PostgresStore{pool: pool, timeout: timeout}
}

// Read implements Store.
func (s *PostgresStore) Read(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	if s.pool == nil {
		return errors.New("postgres pool not configured")
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return fn(ctx, bind(s.pool))
}

// WithinTx implements Store.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	if s.pool == nil {
		return errors.New("postgres pool not configured")
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, bind(tx))
	})
}

func (s *PostgresStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func bind(q Querier) Repositories {
	return Repositories{
		Tickets:  NewTicketRepository(q),
		Articles: NewArticleRepository(q),
		Sessions: NewSessionRepository(q),
		Audit:    NewAuditRepository(q),
	}
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return errors.Join(ErrDuplicateKey, err)
	}
	return err
}
