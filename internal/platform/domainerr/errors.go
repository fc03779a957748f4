// Package domainerr holds the error taxonomy shared by the checkout domain,
// application and transport layers.
package domainerr

import (
	"errors"
	"fmt"
)

// Sentinel categories. Wrap them in a DomainError and compare with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state transition")
	ErrUnavailable  = errors.New("dependency unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// DomainError carries a stable machine-readable code next to a message for
// the caller and the category sentinel it belongs to.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error { return e.Err }

// New builds a DomainError in the given category.
func New(category error, code, message string) *DomainError {
	return &DomainError{Code: code, Message: message, Err: category}
}

// NewValidationError reports invalid caller input.
func NewValidationError(code, message string) *DomainError {
	return New(ErrValidation, code, message)
}

// NewNotFoundError reports a missing aggregate.
func NewNotFoundError(entity, id string) *DomainError {
	return New(ErrNotFound, "not_found", fmt.Sprintf("%s %s not found", entity, id))
}

// NewConflictError reports a concurrent modification or duplicate.
func NewConflictError(message string) *DomainError {
	return New(ErrConflict, "conflict", message)
}

// NewInvalidStateError reports a transition the state machine forbids.
func NewInvalidStateError(from, to string) *DomainError {
	return New(ErrInvalidState, "invalid_state",
		fmt.Sprintf("cannot transition from %s to %s", from, to))
}

// NewUnavailableError reports a failing downstream dependency.
func NewUnavailableError(code, message string, cause error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: errors.Join(ErrUnavailable, cause)}
}

// Code returns the DomainError code found in err's chain, or "".
func Code(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsNotFound reports whether err belongs to the not-found category.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
