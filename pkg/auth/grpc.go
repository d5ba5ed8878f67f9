package auth

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	apperr "github.com/17ms/zeronote/pkg/errors"
)

// UnaryServerInterceptor authenticates unary calls from the
// "authorization" metadata with the same state machine as
// [Middleware.Handler]. Register it when building a server:
//
//	srv := grpc.NewServer(
//		grpc.ChainUnaryInterceptor(mw.UnaryServerInterceptor()),
//		grpc.ChainStreamInterceptor(mw.StreamServerInterceptor()),
//	)
//
// Handlers read the caller with [IdentityFromContext].
func (m *Middleware) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := m.authenticateGRPC(ctx)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming counterpart of
// UnaryServerInterceptor.
func (m *Middleware) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := m.authenticateGRPC(ss.Context())
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

// authenticateGRPC reads the first authorization metadata value and runs
// it through Authenticate.
func (m *Middleware) authenticateGRPC(ctx context.Context) (context.Context, error) {
	var header string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(strings.ToLower(HeaderAuthorization)); len(values) > 0 {
			header = values[0]
		}
	}

	identity, err := m.Authenticate(ctx, header)
	if err != nil {
		return ctx, grpcStatus(err)
	}
	return ContextWithIdentity(ctx, identity), nil
}

// grpcStatus maps a rejection to a status: AUTH is Unauthenticated, VAL
// is InvalidArgument and everything else is Internal. The message is the
// same caller-safe text the HTTP middleware writes.
func grpcStatus(err error) error {
	e, ok := apperr.AsError(err)
	if !ok {
		return status.Error(codes.Internal, msgUnavailable)
	}
	switch e.Code.Category() {
	case "AUTH":
		return status.Error(codes.Unauthenticated, e.Message)
	case "VAL":
		return status.Error(codes.InvalidArgument, e.Message)
	default:
		return status.Error(codes.Internal, e.Message)
	}
}

// wrappedServerStream overrides Context so handlers see the identity.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the context carrying the identity.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
