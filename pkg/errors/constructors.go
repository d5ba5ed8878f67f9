package errors

import (
	"errors"
	"fmt"
)

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to err. Wrap(nil, ...) returns nil so
// it can be used directly on a return value.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// ===========================================================================
// Shorthand constructors
// ===========================================================================

// Validation creates a [CodeValidation] error.
func Validation(message string) *Error { return New(CodeValidation, message) }

// NotFound creates a [CodeNotFoundResource] error.
func NotFound(message string) *Error { return New(CodeNotFoundResource, message) }

// Unauthorized creates a [CodeAuthentication] error.
func Unauthorized(message string) *Error { return New(CodeAuthentication, message) }

// Internal creates a [CodeInternal] error.
func Internal(message string) *Error { return New(CodeInternal, message) }

// FromError returns err as an *Error, wrapping anything foreign as an
// internal failure with a generic message.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, CodeInternal, "Internal Server Error")
}
