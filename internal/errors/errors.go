// Package errors provides coded errors for template loading and rendering.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode identifies an error category independent of its message.
type ErrorCode string

const (
	ErrUnknown ErrorCode = "UNKNOWN"

	// Resolution errors
	ErrUnknownVariable     ErrorCode = "UNKNOWN_VARIABLE"
	ErrIndexOutOfRange     ErrorCode = "INDEX_OUT_OF_RANGE"
	ErrInvalidArgument     ErrorCode = "INVALID_ARGUMENT"
	ErrUnknownTemplate     ErrorCode = "UNKNOWN_TEMPLATE"
	ErrInvalidFilterTarget ErrorCode = "INVALID_FILTER_TARGET"
	ErrRecursiveDefinition ErrorCode = "RECURSIVE_DEFINITION"

	// Evaluation errors
	ErrInvalidRange          ErrorCode = "INVALID_RANGE"
	ErrDuplicateLoopVariable ErrorCode = "DUPLICATE_LOOP_VARIABLE"
	ErrInvalidComparison     ErrorCode = "INVALID_COMPARISON"
	ErrUnterminatedBlock     ErrorCode = "UNTERMINATED_BLOCK"
	ErrSyntax                ErrorCode = "SYNTAX"

	// Load errors
	ErrLoad                    ErrorCode = "LOAD_ERROR"
	ErrMissingRequiredVariable ErrorCode = "MISSING_REQUIRED_VARIABLE"

	// Configuration errors
	ErrConfigLoad  ErrorCode = "CONFIG_LOAD"
	ErrConfigValid ErrorCode = "CONFIG_INVALID"

	// Output errors
	ErrSink ErrorCode = "SINK"
)

// Error is an error carrying a stable code and optional details.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var targetErr *Error
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new Error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new Error with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with a code. It returns nil for a nil error.
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	e := New(code, message)
	e.Wrapped = err
	return e
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode reports whether any error in err's chain carries code.
func IsErrorCode(err error, code ErrorCode) bool {
	for err != nil {
		var coded *Error
		if !errors.As(err, &coded) {
			return false
		}
		if coded.Code == code {
			return true
		}
		err = coded.Wrapped
	}
	return false
}

// GetErrorCode returns the outermost code in err's chain, or ErrUnknown.
func GetErrorCode(err error) ErrorCode {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ErrUnknown
}

// GetErrorDetails returns the details of the outermost coded error, if any.
func GetErrorDetails(err error) map[string]interface{} {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Details
	}
	return nil
}
