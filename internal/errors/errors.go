package errors

import (
	"errors"
	"fmt"
)

// SearchError is the structured error type for YetiSearch.
// It carries a stable code so callers can branch without string matching.
type SearchError struct {
	// Code is the unique error code (e.g., "ERR_101_STORAGE_CONNECT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Storage, Search, Input, Soft).
	Category Category

	// Cause is the underlying error that caused this error.
	Cause error
}

// Error implements the error interface.
func (e *SearchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *SearchError) Unwrap() error {
	return e.Cause
}

// Is matches SearchErrors by code so errors.Is works across wrapping.
func (e *SearchError) Is(target error) bool {
	if t, ok := target.(*SearchError); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a SearchError with the given code and message.
// The category is derived from the code.
func New(code, message string) *SearchError {
	return &SearchError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
	}
}

// Newf creates a SearchError with a formatted message.
func Newf(code, format string, args ...any) *SearchError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an underlying error with a code and message.
// Returns nil if cause is nil.
func Wrap(code, message string, cause error) error {
	if cause == nil {
		return nil
	}
	return &SearchError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Cause:    cause,
	}
}

// CodeOf returns the code of err if it is (or wraps) a SearchError.
func CodeOf(err error) (string, bool) {
	var se *SearchError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return "", false
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, cat Category) bool {
	var se *SearchError
	if errors.As(err, &se) {
		return se.Category == cat
	}
	return false
}

// Sentinel errors for common conditions. Compared with errors.Is.
var (
	// ErrIndexNotFound indicates an operation referenced an unknown index.
	ErrIndexNotFound = New(ErrCodeUnknownIndex, "index not found")

	// ErrDocumentNotFound indicates a document lookup missed.
	ErrDocumentNotFound = New(ErrCodeStorageRead, "document not found")

	// ErrInvalidOperator indicates a filter used an unrecognised operator.
	ErrInvalidOperator = New(ErrCodeInvalidOperator, "invalid filter operator")

	// ErrClosed indicates the handle has been closed.
	ErrClosed = New(ErrCodeStorageConnect, "storage is closed")
)
