package shared

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy shared by the engine, the external clients and the API layer.
var (
	ErrValidation             = errors.New("validation failed")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrDependencyUnavailable  = errors.New("dependency unavailable")
	ErrTransientProvider      = errors.New("transient provider error")
	ErrRemoteRejected         = errors.New("remote rejected the request")
	ErrIdempotencyConflict    = errors.New("idempotency conflict")
	ErrNotFound               = errors.New("not found")
	ErrInvalidState           = errors.New("invalid state")
	ErrConcurrentModification = errors.New("concurrent modification")
)

// Reason codes carried by RemoteRejectedError.
const (
	ReasonNoCapacity              = "no_capacity"
	ReasonInvalidRequest          = "invalid_request"
	ReasonInsufficientRemoteFunds = "insufficient_remote_funds"
	ReasonChargeDeclined          = "charge_declined"
	ReasonUnauthorized            = "unauthorized"
)

// ValidationError reports bad input. Never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// InsufficientFundsError means the caller must top up first.
type InsufficientFundsError struct {
	UserID   string
	Balance  int64
	Required int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds for user %s: balance %d, required %d", e.UserID, e.Balance, e.Required)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// DependencyUnavailableError is returned while a circuit breaker is open.
type DependencyUnavailableError struct {
	Dependency string
	RetryAfter time.Duration
}

func (e *DependencyUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable, retry after %s", e.Dependency, e.RetryAfter)
}

func (e *DependencyUnavailableError) Unwrap() error { return ErrDependencyUnavailable }

// TransientError wraps a failure that is worth retrying: timeouts, 5xx, 429
// and connection errors.
type TransientError struct {
	Dependency string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient %s failure (status %d): %v", e.Dependency, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient %s failure: %v", e.Dependency, e.Err)
}

func (e *TransientError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransientProvider}
	}
	return []error{ErrTransientProvider, e.Err}
}

// RemoteRejectedError means the remote explicitly refused the request.
type RemoteRejectedError struct {
	Dependency string
	Reason     string
	Message    string
}

func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("%s rejected request (%s): %s", e.Dependency, e.Reason, e.Message)
}

func (e *RemoteRejectedError) Unwrap() error { return ErrRemoteRejected }

// NotFoundError indicates a missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return e.Entity + " not found: " + e.ID
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidStateError is returned when an operation is not allowed in the
// entity's current state.
type InvalidStateError struct {
	Entity    string
	ID        string
	State     string
	Operation string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %s in state %s", e.Operation, e.Entity, e.ID, e.State)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// IsRetryable reports whether the resilience layer may retry err.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientProvider)
}
