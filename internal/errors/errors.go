// Package errors provides structured error types for hrload.
// Every error carries a category and a code so callers can tell an
// accumulate-and-continue failure (validation) from an abort (store,
// snapshot) without inspecting messages.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryRequest    ErrorCategory = "REQUEST"
	ErrCategoryStore      ErrorCategory = "STORE"
	ErrCategorySnapshot   ErrorCategory = "SNAPSHOT"
	ErrCategoryAuth       ErrorCategory = "AUTH"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeMissingRequired = "MISSING_REQUIRED"

	// Request codes
	CodeInvalidTableName = "INVALID_TABLE_NAME"

	// Store codes
	CodeStoreUnavailable = "STORE_UNAVAILABLE"

	// Snapshot codes
	CodeCorruptSnapshot = "CORRUPT_SNAPSHOT"
	CodeBackupNotFound  = "BACKUP_NOT_FOUND"

	// Auth codes
	CodeUnauthorized = "UNAUTHORIZED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Sentinel values for errors.Is matching. Only category and code are compared.
var (
	ErrValidationFailure = New(ErrCategoryValidation, CodeMissingRequired, "required column missing")
	ErrInvalidTableName  = New(ErrCategoryRequest, CodeInvalidTableName, "invalid table name")
	ErrStoreUnavailable  = New(ErrCategoryStore, CodeStoreUnavailable, "store unavailable")
	ErrCorruptSnapshot   = New(ErrCategorySnapshot, CodeCorruptSnapshot, "corrupt snapshot")
	ErrBackupNotFound    = New(ErrCategorySnapshot, CodeBackupNotFound, "backup not found")
	ErrUnauthorized      = New(ErrCategoryAuth, CodeUnauthorized, "unauthorized")
)

// HRError is the structured error type used throughout the system.
type HRError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error returns a formatted error string.
func (e *HRError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *HRError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *HRError) Is(target error) bool {
	var t *HRError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new HRError.
func New(category ErrorCategory, code, message string) *HRError {
	return &HRError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// Wrap creates a new HRError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *HRError {
	return &HRError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *HRError) WithDetails(details map[string]interface{}) *HRError {
	cp := *e
	cp.Details = details
	return &cp
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an HRError.
func GetCategory(err error) ErrorCategory {
	var he *HRError
	if errors.As(err, &he) {
		return he.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an HRError.
func GetCode(err error) string {
	var he *HRError
	if errors.As(err, &he) {
		return he.Code
	}
	return ""
}

// Convenience constructors for common errors.

func NewValidationError(message string) *HRError {
	return New(ErrCategoryValidation, CodeMissingRequired, message)
}

func NewInvalidTableError(table string) *HRError {
	return New(ErrCategoryRequest, CodeInvalidTableName, "invalid table name").
		WithDetails(map[string]interface{}{"table": table})
}

func NewStoreError(message string, cause error) *HRError {
	return Wrap(ErrCategoryStore, CodeStoreUnavailable, message, cause)
}

func NewCorruptSnapshotError(message string, cause error) *HRError {
	return Wrap(ErrCategorySnapshot, CodeCorruptSnapshot, message, cause)
}

func NewBackupNotFoundError(location string) *HRError {
	return New(ErrCategorySnapshot, CodeBackupNotFound, "backup not found: "+location)
}

func NewUnauthorizedError(message string, cause error) *HRError {
	return Wrap(ErrCategoryAuth, CodeUnauthorized, message, cause)
}

func NewInternalError(message string, cause error) *HRError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
