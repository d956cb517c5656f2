package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-gateway/internal/domain"
)

// TicketFilter captures TicketSearch parameters. Nil fields do not filter.
type TicketFilter struct {
	TicketNumber *string
	Queue        *string
	State        *string
	CustomerUser *string
	TitleLike    *string
	Limit        int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByNumber(ctx context.Context, number string) (*domain.Ticket, error)
	// GetByNumberForUpdate locks the row until the surrounding transaction ends.
	GetByNumberForUpdate(ctx context.Context, number string) (*domain.Ticket, error)
	Search(ctx context.Context, filter TicketFilter) ([]string, error)
}

type ticketRepository struct {
	q Querier
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(q Querier) TicketRepository {
	return &ticketRepository{q: q}
}

const ticketColumns = `id, ticket_number, title, queue, priority, type, state, customer_user,
               dynamic_fields, notes, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, ticket_number, title, queue, priority, type, state, customer_user,
            dynamic_fields, notes, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err := r.q.Exec(ctx, query,
		ticket.TicketID,
		ticket.TicketNumber,
		ticket.Title,
		ticket.Queue,
		ticket.Priority,
		ticket.Type,
		ticket.State,
		ticket.CustomerUser,
		ticket.DynamicFields,
		ticket.Notes,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	)
	return translate(err)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET title=$1, queue=$2, priority=$3, type=$4, state=$5, customer_user=$6,
            dynamic_fields=$7, notes=$8, updated_at=$9
        WHERE id=$10`
	cmd, err := r.q.Exec(ctx, query,
		ticket.Title,
		ticket.Queue,
		ticket.Priority,
		ticket.Type,
		ticket.State,
		ticket.CustomerUser,
		ticket.DynamicFields,
		ticket.Notes,
		ticket.UpdatedAt,
		ticket.TicketID,
	)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ticket_number=$1`
	return r.fetchSingle(ctx, query, number)
}

func (r *ticketRepository) GetByNumberForUpdate(ctx context.Context, number string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ticket_number=$1 FOR UPDATE`
	return r.fetchSingle(ctx, query, number)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.q.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, translate(err)
	}
	return ticket, nil
}

func (r *ticketRepository) Search(ctx context.Context, filter TicketFilter) ([]string, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.TicketNumber != nil {
		args = append(args, *filter.TicketNumber)
		clauses = append(clauses, fmt.Sprintf("ticket_number=$%d", len(args)))
	}
	if filter.Queue != nil {
		args = append(args, *filter.Queue)
		clauses = append(clauses, fmt.Sprintf("queue=$%d", len(args)))
	}
	if filter.State != nil {
		args = append(args, *filter.State)
		clauses = append(clauses, fmt.Sprintf("state=$%d", len(args)))
	}
	if filter.CustomerUser != nil {
		args = append(args, *filter.CustomerUser)
		clauses = append(clauses, fmt.Sprintf("customer_user=$%d", len(args)))
	}
	if filter.TitleLike != nil && strings.TrimSpace(*filter.TitleLike) != "" {
		args = append(args, "%"+escapeLike(strings.ToLower(strings.TrimSpace(*filter.TitleLike)))+"%")
		clauses = append(clauses, fmt.Sprintf(`LOWER(title) LIKE $%d ESCAPE '\'`, len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}

	query := fmt.Sprintf(`SELECT id FROM tickets WHERE %s ORDER BY created_at ASC LIMIT %d`,
		strings.Join(clauses, " AND "), limit)

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.TicketID,
		&ticket.TicketNumber,
		&ticket.Title,
		&ticket.Queue,
		&ticket.Priority,
		&ticket.Type,
		&ticket.State,
		&ticket.CustomerUser,
		&ticket.DynamicFields,
		&ticket.Notes,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if ticket.DynamicFields == nil {
		ticket.DynamicFields = map[string]any{}
	}
	if ticket.Notes == nil {
		ticket.Notes = []string{}
	}
	return &ticket, nil
}
