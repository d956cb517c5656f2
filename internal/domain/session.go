package domain

import "time"

// Session proves a prior successful authentication. ID is the stored key;
// SessionID is the opaque token handed to the caller.
type Session struct {
	ID        string
	SessionID string
	User      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is past its lifetime at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
