package errors

import (
	stderrors "errors"
	"fmt"
)

// DriveError is the structured error type for amandrive.
// It provides rich context for error handling, logging, and user presentation.
type DriveError struct {
	// Code is the unique error code (e.g., "ERR_201_FILE_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Validation, Internal).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Suggestion is an actionable suggestion for the operator.
	Suggestion string
}

// Error implements the error interface.
func (e *DriveError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *DriveError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with DriveError.
func (e *DriveError) Is(target error) bool {
	if t, ok := target.(*DriveError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *DriveError) WithDetail(key, value string) *DriveError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion.
func (e *DriveError) WithSuggestion(suggestion string) *DriveError {
	e.Suggestion = suggestion
	return e
}

// New creates a new DriveError with the given code and message.
// Category and severity are derived from the code.
func New(code string, message string, cause error) *DriveError {
	return &DriveError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Wrap creates a DriveError from an existing error.
// The error's message becomes the DriveError message.
func Wrap(code string, err error) *DriveError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *DriveError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *DriveError {
	return New(ErrCodeInvalidInput, message, cause)
}

// IndexError creates an index mutation error.
func IndexError(message string, cause error) *DriveError {
	return New(ErrCodeIndexFailed, message, cause)
}

// StoreError creates a metadata store error.
func StoreError(message string, cause error) *DriveError {
	return New(ErrCodeStoreFailed, message, cause)
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var de *DriveError
	if stderrors.As(err, &de) {
		return de.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a DriveError anywhere in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var de *DriveError
	if stderrors.As(err, &de) {
		return de.Code
	}
	return ""
}

// GetCategory extracts the category from a DriveError anywhere in the chain.
func GetCategory(err error) Category {
	var de *DriveError
	if stderrors.As(err, &de) {
		return de.Category
	}
	return ""
}
