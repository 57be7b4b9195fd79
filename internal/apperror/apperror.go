// Package apperror defines the error taxonomy shared by the progress and
// proctoring services. Handlers map these onto HTTP status codes.
package apperror

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ValidationError reports malformed attempt or update input. It is never
// retried automatically.
type ValidationError struct {
	Field      string
	Constraint string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Constraint)
}

// Invalid builds a ValidationError for field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Constraint: fmt.Sprintf(format, args...)}
}

// ConflictError reports a compare-and-swap version mismatch or a duplicate
// ledger entry. The caller should re-read and retry.
type ConflictError struct {
	Resource string
	Detail   string
}

func (e *ConflictError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: concurrent modification", e.Resource)
	}
	return fmt.Sprintf("%s: %s", e.Resource, e.Detail)
}

// StoreUnavailableError wraps a timeout or failure of the ledger, progress or
// result store. It is retryable.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// Unavailable wraps err as a StoreUnavailableError unless it already carries
// one of the domain error types.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsValidation(err) || IsConflict(err) || IsUnavailable(err) || errors.Is(err, ErrNotFound) {
		return err
	}
	return &StoreUnavailableError{Op: op, Err: err}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsUnavailable reports whether err is (or wraps) a StoreUnavailableError.
func IsUnavailable(err error) bool {
	var se *StoreUnavailableError
	return errors.As(err, &se)
}
