package auth

import (
	"context"
	"crypto/subtle"
	"errors"
)

// ErrInvalidCredentials is returned when a user/password pair is rejected.
var ErrInvalidCredentials = errors.New("invalid credentials")

// CredentialValidator decides whether a user/password pair may open a session.
type CredentialValidator interface {
	Validate(ctx context.Context, user, password string) error
}

// StaticValidator accepts exactly one configured user whose password is held
// as a bcrypt hash.
type StaticValidator struct {
	user string
	hash string
}

// NewStaticValidator builds a validator from a user and a bcrypt hash.
func NewStaticValidator(user, passwordHash string) *StaticValidator {
	return &StaticValidator{user: user, hash: passwordHash}
}

// NewStaticValidatorFromPassword hashes password with cost at startup.
func NewStaticValidatorFromPassword(user, password string, cost int) (*StaticValidator, error) {
	hash, err := HashPassword(password, cost)
	if err != nil {
		return nil, err
	}
	return NewStaticValidator(user, hash), nil
}

// Validate implements CredentialValidator. The bcrypt comparison runs even for
// an unknown user so both rejections cost the same.
func (v *StaticValidator) Validate(_ context.Context, user, password string) error {
	if user == "" || password == "" {
		return ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(v.user)) == 1
	passErr := ComparePassword(v.hash, password)
	if !userOK || passErr != nil {
		return ErrInvalidCredentials
	}
	return nil
}
