// Package shared holds the small domain vocabulary used across clinic
// packages: error kinds, calendar dates, money and request validation.
package shared

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Clem69B/deglingos-app-sub000/internal/records"
)

var (
	// ErrValidation marks input rejected before any remote call.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing patient, invoice, consultation or user.
	ErrNotFound = errors.New("not found")
)

// ValidationError carries a summary and optional field-level messages.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid builds a validation error with a summary only.
func Invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// InvalidField builds a validation error about one field.
func InvalidField(field, message string) *ValidationError {
	return &ValidationError{Message: "invalid " + field, Fields: map[string]string{field: message}}
}

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Entity, e.ID) }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFoundIf converts a record-store miss into a domain not-found error and
// passes every other error through.
func NotFoundIf(err error, entity, id string) error {
	if errors.Is(err, records.ErrNotFound) {
		return &NotFoundError{Entity: entity, ID: id}
	}
	return err
}
