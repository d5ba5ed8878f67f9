package errors

import (
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
)

// Error is the structured error carried through every zeronote layer.
// Message is safe to show to API callers; Cause and Details are for logs
// and must never be rendered into a response body.
type Error struct {
	Code    Code
	Message string
	Cause   error
	Details map[string]any
}

// categoryStatus maps a code category to its HTTP status. INT is absent
// and falls through to 500 with unknown categories.
var categoryStatus = map[string]int{
	"VAL":     http.StatusBadRequest,
	"AUTH":    http.StatusUnauthorized,
	"AUTHZ":   http.StatusForbidden,
	"NF":      http.StatusNotFound,
	"CONF":    http.StatusConflict,
	"UNAVAIL": http.StatusServiceUnavailable,
	"TIMEOUT": http.StatusGatewayTimeout,
}

// Error renders "CODE: message", followed by ": cause" when wrapped. The
// cause may hold internal detail; use Message for anything shown to API
// callers.
func (e *Error) Error() string {
	if e.Cause == nil {
		return string(e.Code) + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

// Unwrap exposes Cause to errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus is the response status for the code's category. INT and
// unknown categories are 500.
func (e *Error) HTTPStatus() int {
	if s, ok := categoryStatus[e.Code.Category()]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// WithDetails returns a copy of e with details merged over the existing
// ones. e itself is left untouched.
func (e *Error) WithDetails(details map[string]any) *Error {
	merged := maps.Clone(e.Details)
	if merged == nil {
		merged = make(map[string]any, len(details))
	}
	maps.Copy(merged, details)
	cp := *e
	cp.Details = merged
	return &cp
}

// WithDetail is WithDetails for a single pair.
func (e *Error) WithDetail(key string, value any) *Error {
	return e.WithDetails(map[string]any{key: value})
}

// LogValue renders e as a slog group so that handlers log the code,
// details and cause as separate attributes:
//
//	logger.WarnContext(ctx, "token rejected", "error", err)
func (e *Error) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("code", string(e.Code)),
		slog.String("message", e.Message),
	}
	for _, k := range slices.Sorted(maps.Keys(e.Details)) {
		attrs = append(attrs, slog.Any("detail."+k, e.Details[k]))
	}
	if e.Cause != nil {
		attrs = append(attrs, slog.String("cause", e.Cause.Error()))
	}
	return slog.GroupValue(attrs...)
}
