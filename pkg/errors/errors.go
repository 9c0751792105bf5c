package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies pipeline errors
type ErrorType string

const (
	ErrorTypeConfig      ErrorType = "config"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeEnumeration ErrorType = "enumeration"
	ErrorTypeResolution  ErrorType = "resolution"
	ErrorTypeDownload    ErrorType = "download"
	ErrorTypeWipe        ErrorType = "wipe"
	ErrorTypeTemplate    ErrorType = "template"
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents a pipeline error with type information.
// ItemID carries the purchase/product/file identifier for per-item
// failures so callers can report exactly which item needs attention.
type Error struct {
	Type    ErrorType
	Message string
	Code    int    // HTTP status code, when one applies
	ItemID  string // empty for run-level errors
	Err     error
}

func (e *Error) Error() string {
	if e.ItemID != "" {
		return fmt.Sprintf("%s error (%s): %s", e.Type, e.ItemID, e.Message)
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error
func New(t ErrorType, msg string) *Error {
	return &Error{Type: t, Message: msg}
}

// Newf creates a typed error with a formatted message
func Newf(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an underlying error with type and item information
func Wrap(t ErrorType, itemID string, err error, msg string) *Error {
	return &Error{Type: t, Message: msg, ItemID: itemID, Err: err}
}

// TypeOf returns the error type of err, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsFatal reports whether an error must abort the whole run.
// Config errors mean no valid run was possible; auth errors mean every
// subsequent request would fail the same way.
func IsFatal(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeConfig, ErrorTypeAuth:
		return true
	default:
		return false
	}
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 401, 403, 404: // Client errors that won't change
		return false
	default:
		return statusCode >= 500 // Retry all 5xx errors
	}
}
