package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode is a stable, client-visible error category. The string values are
// the wire codes rendered in HTTP error bodies and stored on failed jobs, so
// they must never change once released.
type ErrorCode string

const (
	// ErrCodeFileTooLarge indicates the submitted payload exceeds the size cap.
	ErrCodeFileTooLarge ErrorCode = "FILE_TOO_LARGE"
	// ErrCodeInvalidFileType indicates the payload's sniffed type is not accepted.
	ErrCodeInvalidFileType ErrorCode = "INVALID_FILE_TYPE"
	// ErrCodeRateLimited indicates the client exceeded its rolling request window.
	ErrCodeRateLimited ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodeInvalidJobID indicates a job id that fails the format check.
	ErrCodeInvalidJobID ErrorCode = "INVALID_JOB_ID"
	// ErrCodeNotFound indicates a job id that is unknown or expired.
	ErrCodeNotFound ErrorCode = "JOB_NOT_FOUND"
	// ErrCodeEgressDenied indicates the egress policy guard denied the operation.
	ErrCodeEgressDenied ErrorCode = "EGRESS_DENIED"
	// ErrCodeInvalidInput indicates a malformed request body or transport encoding.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeConflict indicates a write that collided with an existing record.
	// Internal only; never rendered to clients.
	ErrCodeConflict ErrorCode = "CONFLICT"
	// ErrCodeUnavailable indicates a transient infrastructure failure.
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE"
	// ErrCodeInternal indicates an unexpected server-side error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// AppError is a structured application error with a stable code, a
// client-safe message, and an optional cause. It supports errors.Is and
// errors.As through Unwrap. Message must never carry payload bytes or raw
// encryption-context values.
type AppError struct {
	// Code categorizes the error and doubles as the wire code.
	Code ErrorCode
	// Message is the client-safe description.
	Message string
	// Cause is the underlying error (optional, server-side only).
	Cause error
	// Field names the offending input field (optional).
	Field string
	// RetryAfter hints when a rate-limited client may retry (optional).
	RetryAfter time.Duration
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

// FileTooLarge creates a FILE_TOO_LARGE error.
func FileTooLarge(message string) *AppError {
	return &AppError{Code: ErrCodeFileTooLarge, Message: message}
}

// FileTooLargef creates a FILE_TOO_LARGE error with a formatted message.
func FileTooLargef(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeFileTooLarge, Message: fmt.Sprintf(format, args...)}
}

// InvalidFileType creates an INVALID_FILE_TYPE error.
func InvalidFileType(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidFileType, Message: message}
}

// RateLimited creates a RATE_LIMIT_EXCEEDED error carrying a retry hint.
func RateLimited(message string, retryAfter time.Duration) *AppError {
	return &AppError{Code: ErrCodeRateLimited, Message: message, RetryAfter: retryAfter}
}

// InvalidJobID creates an INVALID_JOB_ID error.
func InvalidJobID(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidJobID, Message: message, Field: "jobId"}
}

// NotFound creates a JOB_NOT_FOUND error.
func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

// EgressDenied creates an EGRESS_DENIED error. The message is the policy
// decision's reason string and deliberately nothing more.
func EgressDenied(reason string) *AppError {
	return &AppError{Code: ErrCodeEgressDenied, Message: reason}
}

// InvalidInput creates an INVALID_INPUT error.
func InvalidInput(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidInput, Message: message}
}

// InvalidInputField creates an INVALID_INPUT error for a specific field.
func InvalidInputField(field, message string) *AppError {
	return &AppError{Code: ErrCodeInvalidInput, Message: message, Field: field}
}

// Conflict creates a CONFLICT error.
func Conflict(message string) *AppError {
	return &AppError{Code: ErrCodeConflict, Message: message}
}

// Unavailable creates an UNAVAILABLE error.
func Unavailable(message string) *AppError {
	return &AppError{Code: ErrCodeUnavailable, Message: message}
}

// Internal creates an INTERNAL_ERROR error.
func Internal(message string) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message}
}

// Internalf creates an INTERNAL_ERROR error with a formatted message.
func Internalf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsFileTooLarge checks if an error is a FILE_TOO_LARGE error.
func IsFileTooLarge(err error) bool {
	return isCode(err, ErrCodeFileTooLarge)
}

// IsInvalidFileType checks if an error is an INVALID_FILE_TYPE error.
func IsInvalidFileType(err error) bool {
	return isCode(err, ErrCodeInvalidFileType)
}

// IsRateLimited checks if an error is a RATE_LIMIT_EXCEEDED error.
func IsRateLimited(err error) bool {
	return isCode(err, ErrCodeRateLimited)
}

// IsInvalidJobID checks if an error is an INVALID_JOB_ID error.
func IsInvalidJobID(err error) bool {
	return isCode(err, ErrCodeInvalidJobID)
}

// IsNotFound checks if an error is a JOB_NOT_FOUND error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsEgressDenied checks if an error is an EGRESS_DENIED error.
func IsEgressDenied(err error) bool {
	return isCode(err, ErrCodeEgressDenied)
}

// IsInvalidInput checks if an error is an INVALID_INPUT error.
func IsInvalidInput(err error) bool {
	return isCode(err, ErrCodeInvalidInput)
}

// IsConflict checks if an error is a CONFLICT error.
func IsConflict(err error) bool {
	return isCode(err, ErrCodeConflict)
}

// IsUnavailable checks if an error is an UNAVAILABLE error.
func IsUnavailable(err error) bool {
	return isCode(err, ErrCodeUnavailable)
}

// IsInternal checks if an error is an INTERNAL_ERROR error.
func IsInternal(err error) bool {
	return isCode(err, ErrCodeInternal)
}

// GetCode returns the ErrorCode from an error, or empty string if the error
// chain holds no AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetRetryAfter returns the retry hint from an error, or zero.
func GetRetryAfter(err error) time.Duration {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.RetryAfter
	}
	return 0
}
