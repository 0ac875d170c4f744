package errors

import (
	stderrors "errors"
	"fmt"
)

// Error is the structured error type used across sitesearch.
type Error struct {
	// Code is the unique error code (e.g., "ERR_403_OUTSIDE_SITES").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is derived from the code.
	Category Category

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by code, so errors.Is(err, errors.New(code, "", nil)) works.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates an Error with the given code and message.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an Error from an existing error.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *Error {
	return New(ErrCodeConfigInvalid, message, cause)
}

// FetchError creates a per-URL transient fetch error.
func FetchError(url string, cause error) *Error {
	return New(ErrCodeFetchFailed, "fetch "+url+" failed", cause).WithDetail("url", url)
}

// ValidationError creates a validation error with the given code.
func ValidationError(code, message string) *Error {
	return New(code, message, nil)
}

// ConflictError creates a crawl-session conflict error.
func ConflictError(code, message string) *Error {
	return New(code, message, nil)
}

// StorageError wraps a storage failure.
func StorageError(message string, cause error) *Error {
	return New(ErrCodeStorage, message, cause)
}

// Inconsistency reports a violated lemma/posting invariant.
func Inconsistency(message string) *Error {
	return New(ErrCodeCorpusInconsistent, message, nil)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetCode extracts the error code from the chain, or "" if there is none.
func GetCode(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCategory reports whether err carries an Error of the given category.
func IsCategory(err error, c Category) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Category == c
	}
	return false
}

// Message returns the user-facing message of a coded error, or err.Error().
func Message(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
