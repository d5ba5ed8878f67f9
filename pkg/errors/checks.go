package errors

import "errors"

// AsError finds the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the code of the first *Error in err's chain, or "".
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries exactly code.
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

// hasCategory reports whether the first *Error in err's chain belongs to
// category.
func hasCategory(err error, category string) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == category
}

// ===========================================================================
// Category predicates
// ===========================================================================

// IsValidation reports whether err carries a VAL code.
func IsValidation(err error) bool { return hasCategory(err, "VAL") }

// IsAuthentication reports whether err carries an AUTH code. AUTHZ codes
// are a separate category and do not match.
func IsAuthentication(err error) bool { return hasCategory(err, "AUTH") }

// IsNotFound reports whether err carries an NF code.
func IsNotFound(err error) bool { return hasCategory(err, "NF") }

// IsInternal reports whether err carries an INT code.
func IsInternal(err error) bool { return hasCategory(err, "INT") }

// IsUnavailable reports whether err carries an UNAVAIL code.
func IsUnavailable(err error) bool { return hasCategory(err, "UNAVAIL") }

// IsTimeout reports whether err carries a TIMEOUT code.
func IsTimeout(err error) bool { return hasCategory(err, "TIMEOUT") }

// IsRetryable reports whether the failure is transient from the caller's
// point of view. Authentication failures, including a rejected code
// exchange, are never retryable.
func IsRetryable(err error) bool {
	return IsTimeout(err) || IsUnavailable(err)
}

// IsClientError reports whether err maps to a 4xx status.
func IsClientError(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	s := e.HTTPStatus()
	return s >= 400 && s < 500
}
