package service

import (
	"errors"

	"github.com/spec-kit/ticket-gateway/internal/repository"
	apperrors "github.com/spec-kit/ticket-gateway/pkg/util/errorutil"
)

// storeError maps repository failures onto gateway error kinds. Driver
// errors never cross this boundary unwrapped.
func storeError(err error, ticketNumber string) error {
	if err == nil {
		return nil
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewTicketNotFound(ticketNumber)
	}
	return apperrors.NewStorageUnavailable(err)
}
