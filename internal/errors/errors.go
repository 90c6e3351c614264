// Package errors defines the error taxonomy used by the queue, the stores and job handlers.
//
// Every category is an *AppError carrying an ErrorCode; predicates such as IsTransient
// look through wrapping with errors.As, so handlers may wrap freely.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeValidation indicates a bad payload or request. Never retried.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeNoHandler indicates no handler is registered for the job type. Never retried.
	ErrCodeNoHandler ErrorCode = "no_handler"
	// ErrCodeTransient indicates a network, timeout or dependency failure. Retried while budget remains.
	ErrCodeTransient ErrorCode = "transient"
	// ErrCodeFatal indicates a programming or internal error surfaced by a handler. Never retried.
	ErrCodeFatal ErrorCode = "fatal"
	// ErrCodeStorage indicates the durable store failed or is unavailable.
	ErrCodeStorage ErrorCode = "storage"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error (optional)
	Cause error
	// Field names the offending input field (optional, validation only)
	Field string
	// Retryable marks storage errors that are expected to clear on their own
	Retryable bool
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// Validationf creates a new Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return Validation(fmt.Sprintf(format, args...))
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// NoHandler creates the error reported when a job type has no registered handler.
func NoHandler(jobType string) *AppError {
	return &AppError{
		Code:    ErrCodeNoHandler,
		Message: fmt.Sprintf("no handler registered for job type %q", jobType),
	}
}

// Transient creates a retryable error.
func Transient(message string) *AppError {
	return &AppError{Code: ErrCodeTransient, Message: message}
}

// Transientf creates a retryable error with formatted message.
func Transientf(format string, args ...any) *AppError {
	return Transient(fmt.Sprintf(format, args...))
}

// Fatal creates a non-retryable error.
func Fatal(message string) *AppError {
	return &AppError{Code: ErrCodeFatal, Message: message}
}

// Fatalf creates a non-retryable error with formatted message.
func Fatalf(format string, args ...any) *AppError {
	return Fatal(fmt.Sprintf(format, args...))
}

// Storage wraps a store failure.
func Storage(op string, err error) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: ErrCodeStorage, Message: op, Cause: err}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// IsNoHandler checks if an error is a NoHandler error.
func IsNoHandler(err error) bool {
	return isCode(err, ErrCodeNoHandler)
}

// IsTransient checks if an error is a Transient error.
func IsTransient(err error) bool {
	return isCode(err, ErrCodeTransient)
}

// IsFatal checks if an error is a Fatal error.
func IsFatal(err error) bool {
	return isCode(err, ErrCodeFatal)
}

// IsStorage checks if an error is a Storage error.
func IsStorage(err error) bool {
	return isCode(err, ErrCodeStorage)
}

// IsRetryable reports whether a handler error should consume another attempt.
// Validation, NoHandler and Fatal errors are final; everything else is retried,
// including errors that carry no classification at all.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return true
	}
	switch appErr.Code {
	case ErrCodeValidation, ErrCodeNoHandler, ErrCodeFatal:
		return false
	case ErrCodeStorage:
		return appErr.Retryable
	default:
		return true
	}
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
