// Package apperr provides typed application errors that handlers map to HTTP statuses.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindExternal   Kind = "external"
	KindInternal   Kind = "internal"
)

// Error is a classified error with an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap implements errors.Unwrap.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same kind and message, so sentinel values work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// New creates a new classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies err under kind with a message.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindInternal when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return err != nil && KindOf(err) == KindValidation
}

// IsNotFound reports whether err is a not found error.
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool {
	return err != nil && KindOf(err) == KindConflict
}

// IsExternal reports whether err came from an external provider.
func IsExternal(err error) bool {
	return err != nil && KindOf(err) == KindExternal
}
