package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-gateway/internal/auth"
	"github.com/spec-kit/ticket-gateway/internal/domain"
	"github.com/spec-kit/ticket-gateway/internal/identifier"
	"github.com/spec-kit/ticket-gateway/internal/repository"
	apperrors "github.com/spec-kit/ticket-gateway/pkg/util/errorutil"
)

// SessionCache is the non-authoritative lookaside used by ValidateSession.
type SessionCache interface {
	Get(ctx context.Context, sessionKey string) (string, bool, error)
	Put(ctx context.Context, sessionKey, user string, expiresAt time.Time) error
}

// SessionService issues and validates gateway sessions.
type SessionService struct {
	store     repository.Store
	validator auth.CredentialValidator
	tokens    *auth.TokenManager
	cache     SessionCache
	ids       identifier.Generator
	audit     *AuditLog
	ttl       time.Duration
	logger    *zap.Logger
	clock     func() time.Time
}

// SessionDependencies encapsulates requirements for the session service.
type SessionDependencies struct {
	Store     repository.Store
	Validator auth.CredentialValidator
	Tokens    *auth.TokenManager
	Cache     SessionCache
	IDs       identifier.Generator
	Audit     *AuditLog
	TTL       time.Duration
	Logger    *zap.Logger
}

// NewSessionService builds the service. Cache may be nil.
func NewSessionService(deps SessionDependencies) *SessionService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &SessionService{
		store:     deps.Store,
		validator: deps.Validator,
		tokens:    deps.Tokens,
		cache:     deps.Cache,
		ids:       deps.IDs,
		audit:     deps.Audit,
		ttl:       ttl,
		logger:    logger,
		clock:     time.Now,
	}
}

// CreateSession checks credentials and persists a session that expires after
// the configured TTL. The returned Session carries the signed token in SessionID.
func (s *SessionService) CreateSession(ctx context.Context, user, password string, pb domain.PlaybookContext) (*domain.Session, error) {
	user = strings.TrimSpace(user)
	if user == "" || password == "" {
		return nil, apperrors.NewAuthenticationFailed("missing required fields: User or Password")
	}
	if err := s.validator.Validate(ctx, user, password); err != nil {
		return nil, apperrors.NewAuthenticationFailed("invalid credentials")
	}

	now := s.clock().UTC().Truncate(time.Microsecond)
	session := &domain.Session{
		ID:        s.ids.NewSessionID(),
		User:      user,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	token, err := s.tokens.GenerateToken(session.ID, user, session.CreatedAt, session.ExpiresAt)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	session.SessionID = token

	var entry *domain.AuditEntry
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Sessions.Create(ctx, session); err != nil {
			return err
		}
		var err error
		entry, err = s.audit.Append(ctx, repos, domain.AuditActionSessionCreate, nil,
			map[string]any{"User": user, "ExpiresAt": session.ExpiresAt}, pb)
		return err
	})
	if err != nil {
		err = storeError(err, "")
		s.audit.RecordFailure(ctx, domain.AuditActionSessionCreate, "", pb, err)
		return nil, err
	}
	s.audit.Committed(ctx, entry, "")
	s.remember(ctx, session)
	return session, nil
}

// ValidateSession reports whether token names a live session. Malformed,
// forged and expired tokens are rejected without touching storage.
func (s *SessionService) ValidateSession(ctx context.Context, token string) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, nil
	}
	claims, err := s.tokens.ParseToken(token)
	if err != nil {
		return false, nil
	}
	key := claims.SessionKey()

	if s.cache != nil {
		user, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Debug("session cache lookup failed", zap.Error(err))
		} else if ok && user == claims.Subject {
			return true, nil
		}
	}

	var session *domain.Session
	err = s.store.Read(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		session, err = repos.Sessions.GetByID(ctx, key)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storeError(err, "")
	}
	if session.Expired(s.clock()) || session.User != claims.Subject {
		return false, nil
	}
	s.remember(ctx, session)
	return true, nil
}

// PurgeExpired deletes sessions that expired before now.
func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	var removed int64
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		removed, err = repos.Sessions.DeleteExpired(ctx, s.clock().UTC())
		return err
	})
	if err != nil {
		return 0, storeError(err, "")
	}
	return removed, nil
}

func (s *SessionService) remember(ctx context.Context, session *domain.Session) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, session.ID, session.User, session.ExpiresAt); err != nil {
		s.logger.Debug("session cache write failed", zap.Error(err))
	}
}
