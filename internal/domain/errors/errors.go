package errors

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// Queue errors
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrTransactionInFlight    = errors.New("transaction is being synced")
	ErrInvalidPayload         = errors.New("invalid payload")
	ErrInvalidStatus          = errors.New("invalid sync status")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrMaxRetriesExceeded     = errors.New("max retries exceeded")

	// Sync errors
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrNoAuthToken    = errors.New("no auth token")

	// Store errors
	ErrStoreUnavailable = errors.New("durable store unavailable")

	// Remote errors
	ErrRemoteRejected  = errors.New("remote rejected transaction")
	ErrMissingRemoteID = errors.New("remote response missing id")
	ErrCircuitOpen     = errors.New("circuit breaker is open")

	// Lock errors
	ErrLeaseNotHeld = errors.New("lease not held")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// RemoteError is a non-success response from the remote ledger.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *RemoteError) Unwrap() error {
	return ErrRemoteRejected
}

// Temporary reports whether the server side failed (5xx) as opposed to
// rejecting the request itself.
func (e *RemoteError) Temporary() bool {
	return e.StatusCode >= 500
}

// NewRemoteError creates a new remote error, truncating long bodies.
func NewRemoteError(statusCode int, body string) *RemoteError {
	const maxBody = 256
	if len(body) > maxBody {
		cut := maxBody
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut] + "..."
	}
	return &RemoteError{StatusCode: statusCode, Body: body}
}
