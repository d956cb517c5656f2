// Package repotest provides a transactional in-process repository.Store for
// tests. It is not wired into any binary.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spec-kit/ticket-gateway/internal/domain"
	"github.com/spec-kit/ticket-gateway/internal/repository"
)

// Store implements repository.Store. Transactions are serialized and roll
// back by restoring a snapshot taken at begin.
type Store struct {
	mu    sync.RWMutex
	state *state

	calls   atomic.Int64
	failErr error
	failMu  sync.Mutex
}

type state struct {
	tickets    map[string]domain.Ticket // keyed by TicketID
	articles   []domain.Article
	sessions   map[string]domain.Session
	audit      []domain.AuditEntry
	auditSeq   int64
	duplicates int // pending forced duplicate-key failures on ticket insert
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{state: &state{
		tickets:  map[string]domain.Ticket{},
		sessions: map[string]domain.Session{},
	}}
}

// Calls returns how many times Read or WithinTx was invoked.
func (s *Store) Calls() int64 { return s.calls.Load() }

// FailWith makes every following Read and WithinTx return err until reset with nil.
func (s *Store) FailWith(err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.failErr = err
}

// ForceDuplicateTicketNumbers makes the next n ticket inserts fail with
// repository.ErrDuplicateKey.
func (s *Store) ForceDuplicateTicketNumbers(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.duplicates = n
}

// AuditEntries returns a copy of every appended entry.
func (s *Store) AuditEntries() []domain.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AuditEntry(nil), s.state.audit...)
}

// ArticleCount returns the number of stored articles.
func (s *Store) ArticleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.articles)
}

// ExpireSession moves a stored session's expiry to at.
func (s *Store) ExpireSession(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.state.sessions[id]; ok {
		sess.ExpiresAt = at
		s.state.sessions[id] = sess
	}
}

func (s *Store) injected() error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	return s.failErr
}

// Read implements repository.Store.
func (s *Store) Read(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	s.calls.Add(1)
	if err := s.injected(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, s.repos(s.state, false))
}

// WithinTx implements repository.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	s.calls.Add(1)
	if err := s.injected(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	working := s.state.clone()
	if err := fn(ctx, s.repos(working, true)); err != nil {
		// keep consumed duplicate injections so retries observe them
		s.state.duplicates = working.duplicates
		return err
	}
	s.state = working
	return nil
}

func (s *Store) repos(st *state, writable bool) repository.Repositories {
	return repository.Repositories{
		Tickets:  &tickets{st: st, writable: writable},
		Articles: &articles{st: st, writable: writable},
		Sessions: &sessions{st: st, writable: writable},
		Audit:    &audit{st: st, writable: writable},
	}
}

func (st *state) clone() *state {
	out := &state{
		tickets:    make(map[string]domain.Ticket, len(st.tickets)),
		articles:   append([]domain.Article(nil), st.articles...),
		sessions:   make(map[string]domain.Session, len(st.sessions)),
		audit:      append([]domain.AuditEntry(nil), st.audit...),
		auditSeq:   st.auditSeq,
		duplicates: st.duplicates,
	}
	for k, v := range st.tickets {
		out.tickets[k] = copyTicket(v)
	}
	for k, v := range st.sessions {
		out.sessions[k] = v
	}
	return out
}

func copyTicket(t domain.Ticket) domain.Ticket {
	fields := make(map[string]any, len(t.DynamicFields))
	for k, v := range t.DynamicFields {
		fields[k] = v
	}
	t.DynamicFields = fields
	t.Notes = append([]string{}, t.Notes...)
	return t
}

var errReadOnly = errors.New("repotest: write outside transaction")

type tickets struct {
	st       *state
	writable bool
}

func (r *tickets) Create(_ context.Context, ticket *domain.Ticket) error {
	if !r.writable {
		return errReadOnly
	}
	if r.st.duplicates > 0 {
		r.st.duplicates--
		return fmt.Errorf("ticket_number %s: %w", ticket.TicketNumber, repository.ErrDuplicateKey)
	}
	for _, existing := range r.st.tickets {
		if existing.TicketNumber == ticket.TicketNumber || existing.TicketID == ticket.TicketID {
			return fmt.Errorf("ticket_number %s: %w", ticket.TicketNumber, repository.ErrDuplicateKey)
		}
	}
	r.st.tickets[ticket.TicketID] = copyTicket(*ticket)
	return nil
}

func (r *tickets) Update(_ context.Context, ticket *domain.Ticket) error {
	if !r.writable {
		return errReadOnly
	}
	if _, ok := r.st.tickets[ticket.TicketID]; !ok {
		return repository.ErrNotFound
	}
	r.st.tickets[ticket.TicketID] = copyTicket(*ticket)
	return nil
}

func (r *tickets) GetByNumber(_ context.Context, number string) (*domain.Ticket, error) {
	for _, t := range r.st.tickets {
		if t.TicketNumber == number {
			out := copyTicket(t)
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *tickets) GetByNumberForUpdate(ctx context.Context, number string) (*domain.Ticket, error) {
	return r.GetByNumber(ctx, number)
}

func (r *tickets) Search(_ context.Context, f repository.TicketFilter) ([]string, error) {
	matches := []domain.Ticket{}
	for _, t := range r.st.tickets {
		if f.TicketNumber != nil && t.TicketNumber != *f.TicketNumber {
			continue
		}
		if f.Queue != nil && t.Queue != *f.Queue {
			continue
		}
		if f.State != nil && t.State != *f.State {
			continue
		}
		if f.CustomerUser != nil && t.CustomerUser != *f.CustomerUser {
			continue
		}
		if f.TitleLike != nil && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(*f.TitleLike)) {
			continue
		}
		matches = append(matches, t)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.Before(matches[j].CreatedAt) })
	ids := []string{}
	for _, t := range matches {
		ids = append(ids, t.TicketID)
	}
	if f.Limit > 0 && len(ids) > f.Limit {
		ids = ids[:f.Limit]
	}
	return ids, nil
}

type articles struct {
	st       *state
	writable bool
}

func (r *articles) Create(_ context.Context, article *domain.Article) error {
	if !r.writable {
		return errReadOnly
	}
	if _, ok := r.st.tickets[article.TicketID]; !ok {
		return fmt.Errorf("articles.ticket_id %s: foreign key violation", article.TicketID)
	}
	r.st.articles = append(r.st.articles, *article)
	return nil
}

func (r *articles) ListByTicket(_ context.Context, ticketID string) ([]domain.Article, error) {
	out := []domain.Article{}
	for _, a := range r.st.articles {
		if a.TicketID == ticketID {
			if t, ok := r.st.tickets[ticketID]; ok {
				a.TicketNumber = t.TicketNumber
			}
			out = append(out, a)
		}
	}
	return out, nil
}

type sessions struct {
	st       *state
	writable bool
}

func (r *sessions) Create(_ context.Context, session *domain.Session) error {
	if !r.writable {
		return errReadOnly
	}
	if _, ok := r.st.sessions[session.ID]; ok {
		return repository.ErrDuplicateKey
	}
	r.st.sessions[session.ID] = *session
	return nil
}

func (r *sessions) GetByID(_ context.Context, id string) (*domain.Session, error) {
	sess, ok := r.st.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sess, nil
}

func (r *sessions) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	if !r.writable {
		return 0, errReadOnly
	}
	var n int64
	for id, sess := range r.st.sessions {
		if !sess.ExpiresAt.After(before) {
			delete(r.st.sessions, id)
			n++
		}
	}
	return n, nil
}

type audit struct {
	st       *state
	writable bool
}

func (r *audit) Append(_ context.Context, entry *domain.AuditEntry) error {
	if !r.writable {
		return errReadOnly
	}
	r.st.auditSeq++
	entry.ID = r.st.auditSeq
	r.st.audit = append(r.st.audit, *entry)
	return nil
}

func (r *audit) ListByTicket(_ context.Context, ticketID string) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	for _, e := range r.st.audit {
		if e.TicketID != nil && *e.TicketID == ticketID {
			out = append(out, e)
		}
	}
	return out, nil
}
