package service

import (
	"errors"
	"fmt"
)

// Common service errors - sentinel errors used across service implementations.
// The API layer maps them to HTTP status codes; the live comment session maps
// them to error replies.
var (
	// ErrNotOwned indicates a resource is owned by a different user than the one making the request.
	// API layer should map this to HTTP 403 Forbidden.
	ErrNotOwned = errors.New("resource is owned by another user")

	// ErrTaskNotFound indicates the task does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrCommentNotFound indicates the comment does not exist on the task.
	ErrCommentNotFound = errors.New("comment not found")

	// ErrInvalidCredentials indicates an unknown email or a wrong password.
	// The two cases are deliberately indistinguishable to callers.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrEmailTaken indicates registration with an email that already exists.
	ErrEmailTaken = errors.New("email already registered")

	// ErrStoreUnavailable indicates the circuit breaker around the store is open.
	ErrStoreUnavailable = errors.New("store temporarily unavailable")
)

// ServiceError wraps unexpected errors from a service operation with context.
type ServiceError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
func NewServiceError(operation, message string, err error) *ServiceError {
	return &ServiceError{Operation: operation, Message: message, Err: err}
}
