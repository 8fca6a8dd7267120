package errors

import (
	stderrors "errors"
	"fmt"
)

// RecallError is the structured error type used across amanrecall.
type RecallError struct {
	// Code is the unique error code (e.g., "ERR_503_SEARCH_FAILED").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details carries extra context such as fragment ids or backend names.
	Details map[string]string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable hint for the operator.
	Suggestion string
}

// Error implements the error interface.
func (e *RecallError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *RecallError) Unwrap() error {
	return e.Cause
}

// Is matches another RecallError by code so errors.Is works on sentinels.
func (e *RecallError) Is(target error) bool {
	if t, ok := target.(*RecallError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *RecallError) WithDetail(key, value string) *RecallError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the operator.
func (e *RecallError) WithSuggestion(suggestion string) *RecallError {
	e.Suggestion = suggestion
	return e
}

// New creates a RecallError. Category, severity and retryability derive from the code.
func New(code string, message string, cause error) *RecallError {
	return &RecallError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a RecallError from an existing error, reusing its message.
func Wrap(code string, err error) *RecallError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration error.
func ConfigError(message string, cause error) *RecallError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StoreError creates a store read error.
func StoreError(message string, cause error) *RecallError {
	return New(ErrCodeStoreRead, message, cause)
}

// NetworkError creates a retryable network error.
func NetworkError(message string, cause error) *RecallError {
	return New(ErrCodeNetworkUnavailable, message, cause)
}

// ValidationError creates an input validation error.
func ValidationError(message string, cause error) *RecallError {
	return New(ErrCodeInvalidInput, message, cause)
}

// as finds the first RecallError in err's chain.
func as(err error) (*RecallError, bool) {
	var re *RecallError
	if stderrors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsRetryable reports whether err (or anything it wraps) is a retryable RecallError.
func IsRetryable(err error) bool {
	if re, ok := as(err); ok {
		return re.Retryable
	}
	return false
}

// IsFatal reports whether err carries fatal severity.
func IsFatal(err error) bool {
	if re, ok := as(err); ok {
		return re.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the code from a RecallError in the chain, or "".
func GetCode(err error) string {
	if re, ok := as(err); ok {
		return re.Code
	}
	return ""
}

// GetCategory extracts the category from a RecallError in the chain, or "".
func GetCategory(err error) Category {
	if re, ok := as(err); ok {
		return re.Category
	}
	return ""
}
