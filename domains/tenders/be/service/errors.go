package service

import (
	"errors"
	"fmt"
)

// Errors surfaced by store implementations.
var (
	// ErrUnsupported reports an operation the backing store cannot provide
	// (e.g. the claim protocol on the blob fallback store).
	ErrUnsupported = errors.New("operation not supported by this store")
	// ErrRetriesExhausted reports that an optimistic write lost every retry
	// attempt to concurrent writers.
	ErrRetriesExhausted = errors.New("optimistic retries exhausted")
	// ErrAlreadyExists reports a create colliding with an existing record.
	ErrAlreadyExists = errors.New("record already exists")
)

// ValidationError reports a rejected input (invalid status value, missing
// required field). It is raised immediately and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for one field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// RollbackError reports that a partial failure could not be rolled back; the
// stores are left drifted until reconciliation repairs them. Cause is the
// original failure, RollbackCause the failure of the undo itself.
type RollbackError struct {
	Op            string
	Cause         error
	RollbackCause error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("%s failed (%v) and rollback failed: %v", e.Op, e.Cause, e.RollbackCause)
}

func (e *RollbackError) Unwrap() error { return e.Cause }
