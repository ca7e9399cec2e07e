// Package errors provides structured error handling for sentinel operations.
// It defines error codes, error types, and utilities for creating and
// classifying errors raised by the scan orchestrator, the poll scheduler,
// and the alert synchronizer.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeCanceled      ErrorCode = "CANCELED"

	// Scan lifecycle errors.
	CodeSubmission  ErrorCode = "SUBMISSION"
	CodeScanFailed  ErrorCode = "SCAN_FAILED"
	CodePollExpired ErrorCode = "POLL_EXPIRED"

	// Backend transport errors.
	CodeTransport          ErrorCode = "TRANSPORT"
	CodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	CodeNotFound           ErrorCode = "NOT_FOUND"
)

// ValidationError indicates caller-supplied input was rejected before any
// network call was made.
type ValidationError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   interface{}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewValidationError creates a validation error for a specific field.
func NewValidationError(message, field string, value interface{}) *ValidationError {
	return &ValidationError{
		Code:    CodeValidation,
		Message: message,
		Field:   field,
		Value:   value,
	}
}

// SubmissionError indicates the backend rejected a create request.
type SubmissionError struct {
	Code      ErrorCode
	Message   string
	Target    string
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *SubmissionError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("[%s] %s (target: %s)", e.Code, e.Message, e.Target)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *SubmissionError) Unwrap() error {
	return e.Cause
}

// WrapSubmissionError wraps a backend rejection for a given target.
func WrapSubmissionError(message, target string, err error) *SubmissionError {
	return &SubmissionError{
		Code:    CodeSubmission,
		Message: message,
		Target:  target,
		Cause:   err,
	}
}

// TransportError indicates the backend was unreachable or returned a
// non-2xx response. Local state is left unchanged when it is raised.
type TransportError struct {
	Code       ErrorCode
	Message    string
	Operation  string
	StatusCode int
	Cause      error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("[%s] %s (operation: %s)", e.Code, e.Message, e.Operation)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// WithStatus attaches the HTTP status code that produced the error.
func (e *TransportError) WithStatus(status int) *TransportError {
	e.StatusCode = status
	return e
}

// NewTransportError creates a transport error for an operation.
func NewTransportError(code ErrorCode, message, operation string) *TransportError {
	return &TransportError{
		Code:      code,
		Message:   message,
		Operation: operation,
	}
}

// WrapTransportError wraps a network or decoding failure.
func WrapTransportError(message, operation string, err error) *TransportError {
	return &TransportError{
		Code:      CodeTransport,
		Message:   message,
		Operation: operation,
		Cause:     err,
	}
}

// ScanError represents a failure of a scan job reported through polling,
// including the fatal error raised when the consecutive-error bound for a
// poll session is exceeded.
type ScanError struct {
	Code    ErrorCode
	Message string
	JobID   string
	Target  string
	Cause   error
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("[%s] %s (job: %s)", e.Code, e.Message, e.JobID)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// NewScanError creates a scan error for a job.
func NewScanError(code ErrorCode, message, jobID string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		JobID:   jobID,
	}
}

// WrapScanError wraps an existing error as a scan error.
func WrapScanError(code ErrorCode, message, jobID string, err error) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		JobID:   jobID,
		Cause:   err,
	}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   interface{}
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(message, field string, value interface{}) *ConfigError {
	return &ConfigError{
		Code:    CodeConfiguration,
		Message: message,
		Field:   field,
		Value:   value,
	}
}

// Utility functions for common error operations

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// GetCode extracts the error code from an error if it has one.
func GetCode(err error) ErrorCode {
	var ve *ValidationError
	var se *SubmissionError
	var te *TransportError
	var sce *ScanError
	var ce *ConfigError

	switch {
	case errors.As(err, &ve):
		return ve.Code
	case errors.As(err, &se):
		return se.Code
	case errors.As(err, &te):
		return te.Code
	case errors.As(err, &sce):
		return sce.Code
	case errors.As(err, &ce):
		return ce.Code
	}
	return CodeUnknown
}

// IsValidation reports whether the error was raised before any network call.
func IsValidation(err error) bool {
	return IsCode(err, CodeValidation)
}

// IsRetryable determines if an error indicates a transient condition that a
// poll session may retry within its consecutive-error bound.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeTransport, CodeBackendUnavailable:
		return true
	default:
		return false
	}
}

// Common error creation functions

// ErrEmptyTarget creates an error for an empty or whitespace scan target.
func ErrEmptyTarget() *ValidationError {
	return NewValidationError("scan target must not be empty", "target", "")
}

// ErrUnknownScanType creates an error for an unsupported scan kind.
func ErrUnknownScanType(kind string) *ValidationError {
	return NewValidationError("unsupported scan type", "scan_type", kind)
}

// ErrPollExpired creates the fatal error raised when a poll session exceeds
// its consecutive transport-error bound.
func ErrPollExpired(jobID string, attempts int, cause error) *ScanError {
	return WrapScanError(CodePollExpired,
		fmt.Sprintf("status polling gave up after %d consecutive errors", attempts),
		jobID, cause)
}
