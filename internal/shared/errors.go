package shared

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrPermissionDenied indicates a failed authorization decision. Record
	// lookups that miss are surfaced with the same error so responses never
	// reveal whether a protected record exists.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrLockBusy indicates the moderation mutex is already held.
	ErrLockBusy = errors.New("concurrent operation in progress")
	// ErrNotFound indicates resource not found. Services translate it to
	// ErrPermissionDenied before it crosses the API boundary.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidationError carries field-level messages for a malformed mutating
// request. All failing fields are reported in one error rather than failing
// on the first.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string][]string{field: {message}}}
}

// Add appends a message for a field.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], message)
}

// Empty reports whether no field failed.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

func (e *ValidationError) Error() string {
	if e.Empty() {
		return "validation failed"
	}
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, strings.Join(e.Fields[f], "; ")))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}
