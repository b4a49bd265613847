// -----------------------------------------------------------------------
// Error taxonomy for the orchestration core
// -----------------------------------------------------------------------

package models

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict is returned when a work item update arrives out of state:
	// the job is terminal or the item is no longer running. Workers drop the
	// result on conflict; the rejection is the fencing rule that makes
	// completion posts safe to retry.
	ErrConflict = errors.New("work item update conflicts with current state")

	// ErrNotFound is returned when a referenced job or work item does not exist
	ErrNotFound = errors.New("not found")

	// ErrNoWork is returned by the scheduler when a service has no ready items.
	// This is an expected condition, not an error worth logging.
	ErrNoWork = errors.New("no work available")
)

// InternalFailureMessage is the generic user-visible message attached to a
// job when an invariant violation (programmer error) surfaces.
const InternalFailureMessage = "Harmony internal failure"

// ValidationError marks a malformed worker result (bad bbox, temporal range
// or URL). The item is failed with the message user-visible and never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError with a formatted message
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrorCategory classifies a worker-reported failure for retry purposes
type ErrorCategory string

const (
	// ErrorCategoryRetryable failures count against the item's retry budget
	// before becoming terminal.
	ErrorCategoryRetryable ErrorCategory = "retryable"
	// ErrorCategoryFatal failures are terminal immediately.
	ErrorCategoryFatal ErrorCategory = "fatal"
	// ErrorCategoryValidation failures carry a user-visible message and are
	// never retried.
	ErrorCategoryValidation ErrorCategory = "validation"
)

// Retryable returns true if failures in this category may be re-queued
func (c ErrorCategory) Retryable() bool {
	return c == "" || c == ErrorCategoryRetryable
}
