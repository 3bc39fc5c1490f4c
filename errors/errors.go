// Package errors provides error handling for cadence.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Stable error kinds for control flow
//
// Usage:
//
//	// Create a typed error
//	err := errors.Validationf("Invalid job name: %s", name)
//
//	// Wrap with context (kind survives wrapping)
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check kinds
//	if errors.IsSecurity(err) {
//	    // never swallow, never retry
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

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// User-facing hints and details
var (
	WithHint   = crdb.WithHint
	WithHintf  = crdb.WithHintf
	WithDetail = crdb.WithDetail
)

// Error kinds used for control flow and reporting.
// Check with errors.Is() or the Is* helpers below; wrap with
// errors.Wrap() to add context while preserving the kind.
var (
	// ErrValidation indicates input violated a documented rule
	ErrValidation = New("validation error")

	// ErrSecurity indicates a rule intended to prevent dangerous
	// behaviour was violated. Never swallowed, never retried.
	ErrSecurity = New("security error")

	// ErrConfiguration indicates well-formed input inconsistent with invariants
	ErrConfiguration = New("configuration error")

	// ErrExecution indicates a job process signaled failure
	ErrExecution = New("execution error")

	// ErrTimeout indicates a job exceeded its runtime budget
	ErrTimeout = New("timeout error")

	// ErrGit indicates repository synchronization failed
	ErrGit = New("git error")
)

// Validationf creates a ValidationError with a formatted message
func Validationf(format string, args ...interface{}) error {
	return Wrap(ErrValidation, Newf(format, args...).Error())
}

// Securityf creates a SecurityError with a formatted message
func Securityf(format string, args ...interface{}) error {
	return Wrap(ErrSecurity, Newf(format, args...).Error())
}

// Configurationf creates a ConfigurationError with a formatted message
func Configurationf(format string, args ...interface{}) error {
	return Wrap(ErrConfiguration, Newf(format, args...).Error())
}

// Executionf creates an ExecutionError with a formatted message
func Executionf(format string, args ...interface{}) error {
	return Wrap(ErrExecution, Newf(format, args...).Error())
}

// Timeoutf creates a TimeoutError with a formatted message
func Timeoutf(format string, args ...interface{}) error {
	return Wrap(ErrTimeout, Newf(format, args...).Error())
}

// Gitf creates a GitError with a formatted message
func Gitf(format string, args ...interface{}) error {
	return Wrap(ErrGit, Newf(format, args...).Error())
}

// IsValidation checks if an error is or wraps ErrValidation
func IsValidation(err error) bool {
	return err != nil && Is(err, ErrValidation)
}

// IsSecurity checks if an error is or wraps ErrSecurity
func IsSecurity(err error) bool {
	return err != nil && Is(err, ErrSecurity)
}

// IsConfiguration checks if an error is or wraps ErrConfiguration
func IsConfiguration(err error) bool {
	return err != nil && Is(err, ErrConfiguration)
}

// IsExecution checks if an error is or wraps ErrExecution
func IsExecution(err error) bool {
	return err != nil && Is(err, ErrExecution)
}

// IsTimeout checks if an error is or wraps ErrTimeout
func IsTimeout(err error) bool {
	return err != nil && Is(err, ErrTimeout)
}

// IsGit checks if an error is or wraps ErrGit
func IsGit(err error) bool {
	return err != nil && Is(err, ErrGit)
}
