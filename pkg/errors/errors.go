// Package errors defines the error taxonomy shared by every zeronote
// package. Each failure carries a stable machine-readable [Code] whose
// category determines the HTTP status of the response it produces, so a
// given failure always maps to exactly one status class.
//
// # Codes
//
// Codes follow the pattern CATEGORY_NNN:
//
//	VAL     400  malformed input, including malformed token shape
//	AUTH    401  missing header, invalid/expired token, rejected exchange
//	AUTHZ   403  authenticated but not allowed
//	NF      404  resource does not exist (or is not owned by the caller)
//	CONF    409  state conflict
//	INT     500  infrastructure failure, including key-set fetch
//	UNAVAIL 503  upstream dependency unreachable
//	TIMEOUT 504  upstream dependency timed out
//
// # Usage
//
//	err := errors.New(errors.CodeAuthNotFound, "Authorization header missing")
//	errors.WriteJSON(w, err) // 401 {"code":"401","message":"Authorization header missing"}
//
// Wrapping keeps the cause for logs while the response only ever shows
// the message:
//
//	return errors.Wrap(err, errors.CodeKeyFetch, "auth: key set unavailable")
package errors
