// Package apperr defines the error taxonomy shared by the repository,
// service and handler layers. Handlers map these onto HTTP statuses;
// everything else is treated as an internal failure.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound means the referenced id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateID means an insert collided on a generated id. This
	// indicates a generator defect and is never retried blindly.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrConflict means a concurrent writer changed the row between read
	// and write. The caller re-reads and re-evaluates.
	ErrConflict = errors.New("conflict")

	// ErrStorageUnavailable is a transient infrastructure failure. The
	// whole operation is safe to retry from the caller.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// FieldError names a single offending input field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError collects every offending field of a request so the
// client sees them all at once instead of one per round trip.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Reason))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends a field violation.
func (e *ValidationError) Add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

// Merge absorbs the fields of another validation error, if err is one.
func (e *ValidationError) Merge(err error) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		e.Fields = append(e.Fields, ve.Fields...)
	}
}

// Empty reports whether no violations were recorded.
func (e *ValidationError) Empty() bool { return len(e.Fields) == 0 }

// Invalid builds a single-field validation error.
func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Reason: reason}}}
}

// TransitionError is a status state-machine violation. From and To are
// status codes; the report is left unchanged.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// NotFoundf wraps ErrNotFound naming the missing id.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// Storage wraps a driver error as storage-unavailable. The original error
// text is kept for logs but the sentinel is what callers match on.
func Storage(err error) error {
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
