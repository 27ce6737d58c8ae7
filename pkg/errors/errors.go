// Package errors provides structured, coded errors so that pipeline stages can
// tell a degraded result apart from a fatal one without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies a failure.
type ErrorCode string

const (
	// ErrCodeInvalidRequest rejects a malformed workload identifier or time range.
	// It is the only code that aborts an assessment.
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	// ErrCodeCollectorUnavailable marks a single telemetry source as down.
	ErrCodeCollectorUnavailable ErrorCode = "COLLECTOR_UNAVAILABLE"
	// ErrCodeNoDataAvailable marks a merge where every source failed.
	ErrCodeNoDataAvailable ErrorCode = "NO_DATA_AVAILABLE"
	// ErrCodeNodeUnresolved means cost attribution could not locate the workload's node.
	ErrCodeNodeUnresolved ErrorCode = "NODE_UNRESOLVED"
	// ErrCodeMalformedLogLine is used internally by the extractor; never surfaced.
	ErrCodeMalformedLogLine ErrorCode = "MALFORMED_LOG_LINE"
	// ErrCodeBillingUnreachable means the billing collaborator could not answer.
	ErrCodeBillingUnreachable ErrorCode = "BILLING_UNREACHABLE"
	// ErrCodeTimeout indicates an operation exceeded its time limit.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeNotFound indicates a requested record does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeInternal indicates an unexpected failure.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// StructuredError carries a code for programmatic handling, a human-readable
// message, the underlying cause and optional debugging context.
type StructuredError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is and errors.As support.
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// New creates a new StructuredError with the given code and message.
func New(code ErrorCode, message string) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
	}
}

// NewWithContext creates a new StructuredError with context information.
func NewWithContext(code ErrorCode, message string, context map[string]any) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Context: context,
	}
}

// Wrap wraps an existing error with a code.
func Wrap(code ErrorCode, message string, cause error) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapWithContext wraps an error with a code and context information.
func WrapWithContext(code ErrorCode, message string, cause error, context map[string]any) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: context,
	}
}

// CodeOf returns the code of the first StructuredError in err's chain, or ""
// when there is none.
func CodeOf(err error) ErrorCode {
	var se *StructuredError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsCode reports whether err's chain contains a StructuredError with code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
