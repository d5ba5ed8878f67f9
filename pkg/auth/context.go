package auth

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// identityKey is unexported so only this package can attach an Identity.
type identityKey struct{}

// ContextWithIdentity attaches the caller of an Authorized request.
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the caller attached by the middleware or
// the gRPC interceptors. Handlers that can be reached without them must
// check ok and reject with AUTH_004.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.OwnerID != ""
}

// MustIdentityFromContext is IdentityFromContext for code mounted behind
// the middleware, where a missing identity is a wiring bug.
func MustIdentityFromContext(ctx context.Context) Identity {
	if id, ok := IdentityFromContext(ctx); ok {
		return id
	}
	panic("auth: request reached an owner-scoped handler without an identity")
}

// TraceIDFromContext returns the trace id logged next to a rejection.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String(), true
	}
	return "", false
}
