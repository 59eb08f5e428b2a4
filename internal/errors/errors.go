package errors

import (
	stderrors "errors"
	"fmt"
	"strconv"
)

// Error is the structured error type shared by every MagicFolder component.
type Error struct {
	// Code is the unique error code (e.g., "ERR_201_FILE_NOT_FOUND").
	Code string

	// Kind is the closed failure kind derived from Code.
	Kind Kind

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details carries structured context (path, expected, got, status, ...).
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Transient marks failures a caller may retry on its own.
	Transient bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by code so errors.Is(err, &Error{Code: ...}) works.
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

// WithSuggestion adds an actionable suggestion for the user.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// New creates a new Error with the given code and message.
// Kind, category and severity are derived from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Kind:      kindFromCode(code),
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Transient: isTransientCode(code),
	}
}

// Wrap creates an Error from an existing error.
// The error's message becomes the Error message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// NotFound reports an input path that does not exist.
func NotFound(path string) *Error {
	return New(ErrCodeFileNotFound, "file not found: "+path, nil).
		WithDetail("path", path)
}

// IO reports a read failure on a file that should have been readable.
func IO(path string, cause error) *Error {
	return New(ErrCodeReadFailed, "failed to read "+path, cause).
		WithDetail("path", path)
}

// Upstream reports an embedding service failure.
func Upstream(code, message string, cause error) *Error {
	return New(code, message, cause)
}

// DimensionMismatch reports a vector whose length disagrees with the schema.
func DimensionMismatch(expected, got int) *Error {
	return New(ErrCodeDimensionMismatch,
		fmt.Sprintf("vector dimension mismatch: expected %d, got %d", expected, got), nil).
		WithDetail("expected", strconv.Itoa(expected)).
		WithDetail("got", strconv.Itoa(got))
}

// SchemaMismatch reports an existing table declared with another dimension.
func SchemaMismatch(table string, stored, requested int) *Error {
	return New(ErrCodeSchemaMismatch,
		fmt.Sprintf("table %q has dimension %d, configured dimension is %d", table, stored, requested), nil).
		WithDetail("table", table).
		WithDetail("stored", strconv.Itoa(stored)).
		WithDetail("requested", strconv.Itoa(requested)).
		WithSuggestion("Use the embedding model the table was created with, or point storage.vector_path at a new directory")
}

// Storage reports an engine or disk failure in one of the two stores.
func Storage(code, op string, cause error) *Error {
	msg := op + " failed"
	return New(code, msg, cause).WithDetail("op", op)
}

// Config reports an invalid configuration value.
func Config(message string, cause error) *Error {
	return New(ErrCodeConfigInvalid, message, cause)
}

// Validation reports a caller input the pipeline refuses to run with.
func Validation(code, message string) *Error {
	return New(code, message, nil)
}

// Internal reports an unexpected condition.
func Internal(message string, cause error) *Error {
	return New(ErrCodeInternal, message, cause)
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of the first *Error in err's chain,
// or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// HasKind reports whether any *Error in err's chain carries kind,
// including wrapped causes.
func HasKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// EnsureUpstream returns err when it is already an Upstream error.
// Anything else becomes an Upstream error with err as its cause.
func EnsureUpstream(err error, message string) *Error {
	if e, ok := As(err); ok && e.Kind == KindUpstream {
		return e
	}
	return Upstream(ErrCodeUpstreamUnavailable, message, err)
}

// EnsureStorage returns err when it is already a Storage error.
// Anything else, DimensionMismatch included, becomes the cause of a new
// Storage error.
func EnsureStorage(code, op string, err error) *Error {
	if e, ok := As(err); ok && e.Kind == KindStorage {
		return e
	}
	return Storage(code, op, err)
}

// IsTransient checks if an error is worth retrying by the caller.
func IsTransient(err error) bool {
	if e, ok := As(err); ok {
		return e.Transient
	}
	return false
}

// GetCode extracts the error code, or "" if err is not an *Error.
func GetCode(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}
