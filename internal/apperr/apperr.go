// Package apperr defines the error kinds surfaced by the quest engine.
// Callers match kinds with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrValidation        = errors.New("validation failed")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Error carries the failing operation and a human-readable message.
type Error struct {
	Op      string // e.g. "ledger.Decide"
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

// Unwrap returns the kind so errors.Is(err, ErrNotFound) works.
func (e *Error) Unwrap() error {
	return e.Kind
}

// New builds an Error with a formatted message.
func New(op string, kind error, format string, args ...any) *Error {
	return &Error{
		Op:      op,
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// NotFound is shorthand for New(op, ErrNotFound, ...).
func NotFound(op, format string, args ...any) *Error {
	return New(op, ErrNotFound, format, args...)
}

// InvalidState is shorthand for New(op, ErrInvalidState, ...).
func InvalidState(op, format string, args ...any) *Error {
	return New(op, ErrInvalidState, format, args...)
}

// Validation is shorthand for New(op, ErrValidation, ...).
func Validation(op, format string, args ...any) *Error {
	return New(op, ErrValidation, format, args...)
}

// Unauthorized is shorthand for New(op, ErrUnauthorized, ...).
func Unauthorized(op, format string, args ...any) *Error {
	return New(op, ErrUnauthorized, format, args...)
}

// KindOf returns the first known kind in err's chain, or nil.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrNotFound,
		ErrInvalidState,
		ErrValidation,
		ErrUnauthorized,
		ErrInsufficientFunds,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
