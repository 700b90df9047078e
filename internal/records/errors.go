package records

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("records: not found")
	// ErrConditionFailed indicates a conditional write whose precondition no
	// longer held when the store evaluated it.
	ErrConditionFailed = errors.New("records: condition failed")
	// ErrAlreadyExists indicates a create collided with an existing id.
	ErrAlreadyExists = errors.New("records: already exists")
	// ErrInvalidPageToken indicates a malformed pagination token.
	ErrInvalidPageToken = errors.New("records: invalid page token")
)

// Message flattens a store error chain into a single human-readable string.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var msgs []string
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if e != nil {
				msgs = append(msgs, Message(e))
			}
		}
		return strings.Join(msgs, "; ")
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "record not found"
	case errors.Is(err, ErrConditionFailed):
		return "record was modified concurrently"
	case errors.Is(err, ErrAlreadyExists):
		return "record already exists"
	}
	return err.Error()
}
