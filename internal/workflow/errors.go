package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotFound          = errors.New("entity not found")
	ErrUnknownKind       = errors.New("unknown entity kind")
	ErrPaymentRequired   = errors.New("booking must be paid before confirmation")
	ErrValidation        = errors.New("validation failed")
)

// ValidationError reports a missing or malformed field. It matches ErrValidation
// under errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
