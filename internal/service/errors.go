package service

import (
	"errors"
	"fmt"

	"github.com/stxlabs/tracker-api/internal/domain"
)

// Common service errors - sentinel errors used across service implementations.
// Callers check them with errors.Is; the API layer maps them to HTTP status codes.
var (
	// ErrNotOwned indicates a resource is owned by a different user than the one making the request.
	// API layer should map this to HTTP 403 Forbidden.
	ErrNotOwned = errors.New("resource is owned by another user")

	// ErrInvalidCredentials is returned by Authenticate for an unknown email or a wrong password.
	// API layer should map this to HTTP 401 Unauthorized.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInactiveUser is returned by Authenticate for an account that was never activated.
	// API layer should map this to HTTP 401 Unauthorized.
	ErrInactiveUser = errors.New("account not activated")

	// ErrScheduleFailed indicates the deadline reminder of an issue could not be scheduled.
	// The issue itself was saved; only the reminder is missing.
	ErrScheduleFailed = errors.New("failed to schedule deadline reminder")

	// ErrAssigneeNotParticipant is returned when an issue is assigned to a user
	// outside the issue's project. It matches domain.ErrValidation.
	ErrAssigneeNotParticipant = fmt.Errorf("%w: assignee must participate in the project", domain.ErrValidation)
)

// ServiceError carries the service and operation that failed.
type ServiceError struct {
	Service   string
	Operation string
	Err       error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s service %s operation failed: %v", e.Service, e.Operation, e.Err)
	}
	return fmt.Sprintf("%s service %s operation failed", e.Service, e.Operation)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
func NewServiceError(service, operation string, err error) *ServiceError {
	return &ServiceError{
		Service:   service,
		Operation: operation,
		Err:       err,
	}
}

// invalid marks a domain constructor error as a validation failure.
func invalid(err error) error {
	if errors.Is(err, domain.ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrValidation, err)
}
