package domains

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks failures caused by bad machine input; they are never retried
	ErrValidation = errors.New("validation error")
	// ErrUnknownToken is returned when a token does not resolve to a machine
	ErrUnknownToken = errors.New("unknown token")
	// ErrNodeNotFound is returned when a node id has no row
	ErrNodeNotFound = errors.New("node not found")
	// ErrResultNotFound is returned when a script result id has no row
	ErrResultNotFound = errors.New("script result not found")
	// ErrInTransaction is returned when batch work is started from inside a transaction
	ErrInTransaction = errors.New("must not be called within a transaction")
)

// ValidationError describes rejected machine input
type ValidationError struct {
	Msg string
}

// NewValidationError formats a validation error
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Is lets errors.Is match ErrValidation
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
