// Package errors provides error handling for jira-tool.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// It also defines the failure taxonomy shared by the storage adapter, the
// execution tracker, and the revision workflow. Every failure surfaced by
// those components is or wraps one of the sentinel errors below, so callers
// can branch with errors.Is() instead of string matching.
//
// Usage:
//
//	if _, err := store.GetExecution(ctx, id); errors.Is(err, errors.ErrNotFound) {
//	    // referenced id absent
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// Sentinel errors for the execution/revision domain.
// Wrap these with errors.Wrap() to add ids and recorded status while
// preserving the type.
var (
	// ErrNotFound indicates the referenced execution or revision id is absent.
	ErrNotFound = New("not found")

	// ErrDuplicateKey indicates an id collision on insert.
	ErrDuplicateKey = New("duplicate key")

	// ErrInvalidState indicates the target execution is not in a state that
	// permits the operation (e.g. requesting a revision against a FAILED run).
	ErrInvalidState = New("invalid state")

	// ErrInvalidTransition indicates the recorded status does not permit the
	// requested transition. This covers replayed confirmations and the losing
	// side of a confirmation race; callers must treat it as "someone else
	// already decided this", not a system fault.
	ErrInvalidTransition = New("invalid transition")

	// ErrUpstream indicates an LLM or ticket API failure, including timeout.
	// The core never retries these; retry policy belongs to the caller.
	ErrUpstream = New("upstream failure")

	// ErrValidation indicates malformed input, e.g. an empty change request.
	ErrValidation = New("validation failed")
)

// IsNotFound checks if an error is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsDuplicateKey checks if an error is or wraps ErrDuplicateKey.
func IsDuplicateKey(err error) bool {
	return err != nil && Is(err, ErrDuplicateKey)
}

// IsInvalidState checks if an error is or wraps ErrInvalidState.
func IsInvalidState(err error) bool {
	return err != nil && Is(err, ErrInvalidState)
}

// IsInvalidTransition checks if an error is or wraps ErrInvalidTransition.
func IsInvalidTransition(err error) bool {
	return err != nil && Is(err, ErrInvalidTransition)
}

// IsUpstream checks if an error is or wraps ErrUpstream.
func IsUpstream(err error) bool {
	return err != nil && Is(err, ErrUpstream)
}

// IsValidation checks if an error is or wraps ErrValidation.
func IsValidation(err error) bool {
	return err != nil && Is(err, ErrValidation)
}

// NewNotFound creates a not-found error with a formatted message.
func NewNotFound(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewDuplicateKey creates a duplicate-key error with a formatted message.
func NewDuplicateKey(format string, args ...interface{}) error {
	return Wrap(ErrDuplicateKey, Newf(format, args...).Error())
}

// NewInvalidTransition creates an invalid-transition error naming the record
// and its recorded status, so an operator can see why the transition was
// refused (e.g. "revision abc123 already APPLIED, cannot confirm").
func NewInvalidTransition(format string, args ...interface{}) error {
	return Wrap(ErrInvalidTransition, Newf(format, args...).Error())
}

// NewInvalidState creates an invalid-state error with a formatted message.
func NewInvalidState(format string, args ...interface{}) error {
	return Wrap(ErrInvalidState, Newf(format, args...).Error())
}

// NewValidation creates a validation error with a formatted message.
func NewValidation(format string, args ...interface{}) error {
	return Wrap(ErrValidation, Newf(format, args...).Error())
}

// WrapUpstream wraps a provider or ticket-API error as an upstream failure
// with context.
func WrapUpstream(err error, context string) error {
	return Wrap(Wrap(ErrUpstream, err.Error()), context)
}
