package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an attachment record or its backing file
// does not exist. Callers treat it as an empty result, not a failure.
var ErrNotFound = errors.New("attachment not found")

// ValidationKind identifies the reason an upload was rejected
type ValidationKind string

const (
	ValidationEmpty             ValidationKind = "EMPTY"
	ValidationTooLarge          ValidationKind = "TOO_LARGE"
	ValidationTypeMismatch      ValidationKind = "TYPE_MISMATCH"
	ValidationContentMismatch   ValidationKind = "CONTENT_MISMATCH"
	ValidationTooManyFiles      ValidationKind = "TOO_MANY_FILES"
	ValidationAggregateTooLarge ValidationKind = "AGGREGATE_TOO_LARGE"
)

// ValidationError reports a caller-input problem. No side effects have
// occurred when one is returned; the request is safe to retry after fixing
// the input.
type ValidationError struct {
	Kind    ValidationKind
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Kind, e.Message)
}

// NewValidationError creates a ValidationError with the given kind
func NewValidationError(kind ValidationKind, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// SecurityKind identifies the class of a rejected security violation
type SecurityKind string

const (
	SecurityPathEscape SecurityKind = "PATH_ESCAPE"
)

// SecurityViolation reports an attempt to address a path outside the
// storage root. Always rejected, never best-effort allowed.
type SecurityViolation struct {
	Kind SecurityKind
	Name string
}

func (e *SecurityViolation) Error() string {
	return fmt.Sprintf("security violation (%s): %q", e.Kind, e.Name)
}

// IOKind identifies the class of a storage failure
type IOKind string

const (
	IOShortWrite   IOKind = "SHORT_WRITE"
	IOWriteFailed  IOKind = "WRITE_FAILED"
	IOReadFailed   IOKind = "READ_FAILED"
	IODeleteFailed IOKind = "DELETE_FAILED"
)

// IOFailure reports an environment or resource problem. Compensating
// cleanup has already run by the time one is surfaced, so callers may
// retry without worrying about partial disk state.
type IOFailure struct {
	Kind IOKind
	Err  error
}

func (e *IOFailure) Error() string {
	return fmt.Sprintf("io failure (%s): %v", e.Kind, e.Err)
}

func (e *IOFailure) Unwrap() error {
	return e.Err
}

// NewIOFailure wraps err as an IOFailure of the given kind
func NewIOFailure(kind IOKind, err error) *IOFailure {
	return &IOFailure{Kind: kind, Err: err}
}

// AsValidationError extracts a ValidationError from err, if any
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}

// AsSecurityViolation extracts a SecurityViolation from err, if any
func AsSecurityViolation(err error) (*SecurityViolation, bool) {
	var sv *SecurityViolation
	ok := errors.As(err, &sv)
	return sv, ok
}

// AsIOFailure extracts an IOFailure from err, if any
func AsIOFailure(err error) (*IOFailure, bool) {
	var ioe *IOFailure
	ok := errors.As(err, &ioe)
	return ioe, ok
}
