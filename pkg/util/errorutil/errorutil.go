package errorutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Stable machine-readable error kinds returned to gateway callers.
const (
	CodeAuthenticationFailed = "AuthenticationFailed"
	CodeInvalidTicketFields  = "InvalidTicketFields"
	CodeInvalidArticleFields = "InvalidArticleFields"
	CodeInvalidRequest       = "InvalidRequest"
	CodeTicketNotFound       = "TicketNotFound"
	CodeIdentifierExhausted  = "IdentifierExhausted"
	CodeStorageUnavailable   = "StorageUnavailable"
	CodeInternal             = "InternalError"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewAuthenticationFailed(message string) error {
	return NewDomainError(CodeAuthenticationFailed, message, http.StatusUnauthorized, nil)
}

func NewInvalidTicketFields(message string, details map[string]any) error {
	return NewDomainError(CodeInvalidTicketFields, message, http.StatusBadRequest, details)
}

func NewInvalidArticleFields(message string, details map[string]any) error {
	return NewDomainError(CodeInvalidArticleFields, message, http.StatusBadRequest, details)
}

func NewInvalidRequest(message string, details map[string]any) error {
	return NewDomainError(CodeInvalidRequest, message, http.StatusBadRequest, details)
}

func NewTicketNotFound(ticketNumber string) error {
	return &DomainError{
		Code:       CodeTicketNotFound,
		Message:    fmt.Sprintf("ticket %s not found", ticketNumber),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"TicketNumber": ticketNumber},
	}
}

func NewIdentifierExhausted(attempts int, err error) error {
	return &DomainError{
		Code:       CodeIdentifierExhausted,
		Message:    fmt.Sprintf("could not allocate a unique identifier after %d attempts", attempts),
		HTTPStatus: http.StatusConflict,
		Err:        err,
	}
}

func NewStorageUnavailable(err error) error {
	return &DomainError{
		Code:       CodeStorageUnavailable,
		Message:    "backing store unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError. Deadline and
// cancellation errors become StorageUnavailable since every blocking call in
// the core is a storage call.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewStorageUnavailable(err).(*DomainError)
	}
	return NewInternalError(err).(*DomainError)
}

// IsCode reports whether err carries the given kind.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// Code returns the kind of err, or CodeInternal for foreign errors.
func Code(err error) string {
	if err == nil {
		return ""
	}
	return ToDomainError(err).Code
}
