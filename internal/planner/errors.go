package planner

import (
	"errors"
	"fmt"
)

// ErrSuperseded is returned by an operation whose response arrived after a
// newer call of the same kind was issued. Its result is discarded.
var ErrSuperseded = errors.New("superseded by a newer request")

// ValidationError reports input the caller can correct and retry. The
// message is also written to State.Error.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: err.Error(), Err: err}
}
