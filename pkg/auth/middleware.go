package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	apperr "github.com/17ms/zeronote/pkg/errors"
	"github.com/17ms/zeronote/pkg/logging"
	"github.com/17ms/zeronote/pkg/metrics"
)

// HeaderAuthorization is the request header carrying the bearer token.
const HeaderAuthorization = "Authorization"

// Rejection messages returned to callers. Internal detail stays in logs.
const (
	msgHeaderMissing  = "Authorization header missing"
	msgHeaderFormat   = "Authorization header must follow format 'Bearer <access-token>'"
	msgInvalidToken   = "Invalid JWT token"
	msgMalformedToken = "Malformed JWT token"
	msgUnavailable    = "Token verification unavailable"
)

// MiddlewareConfig configures a [Middleware]. Every field except Logger
// is required.
type MiddlewareConfig struct {
	// Verifier checks the bearer token, normally a [*Verifier].
	Verifier TokenVerifier

	// Audience is the app client id tokens must be issued for.
	Audience string

	// Issuer is the user pool URL tokens must come from.
	Issuer string

	// Logger receives one line per rejection. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics counts requests rejected before verification, such as a
	// missing header. Verification outcomes are counted by the verifier.
	Metrics *metrics.Metrics
}

// Middleware authenticates requests before they reach a handler. A
// request either leaves Authorized with an [Identity] in its context, or
// Rejected with a JSON rejection written and the handler never called.
type Middleware struct {
	verifier TokenVerifier
	audience string
	issuer   string
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewMiddleware validates cfg. A missing verifier, audience or issuer is
// a configuration error reported at startup.
func NewMiddleware(cfg MiddlewareConfig) (*Middleware, error) {
	if cfg.Verifier == nil {
		return nil, apperr.New(apperr.CodeInternalConfiguration, "auth: middleware requires a verifier")
	}
	if strings.TrimSpace(cfg.Audience) == "" {
		return nil, apperr.New(apperr.CodeInternalConfiguration, "auth: middleware requires an expected audience")
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, apperr.New(apperr.CodeInternalConfiguration, "auth: middleware requires an expected issuer")
	}
	logger := logging.OrDefault(cfg.Logger)
	return &Middleware{
		verifier: cfg.Verifier,
		audience: cfg.Audience,
		issuer:   cfg.Issuer,
		logger:   logger,
		metrics:  cfg.Metrics,
	}, nil
}

// Handler wraps next.
//
//	r := chi.NewRouter()
//	r.With(mw.Handler).Get("/api/all", h.List)
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := m.Authenticate(r.Context(), r.Header.Get(HeaderAuthorization))
		if err != nil {
			apperr.WriteJSON(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
	})
}

// Authenticate runs the request state machine over an Authorization
// header value. On success it returns the caller's identity; otherwise
// an *apperr.Error whose code selects the response status and whose
// message is safe to return to the caller.
func (m *Middleware) Authenticate(ctx context.Context, header string) (Identity, error) {
	flow := newRequestFlow()

	token, err := parseBearer(header)
	if err != nil {
		m.metrics.ObserveVerification(string(apperr.GetCode(err)))
		return Identity{}, m.rejected(ctx, flow, err)
	}
	flow.token = token
	if err := flow.advance(StateTokenPresent); err != nil {
		return Identity{}, m.rejected(ctx, flow, err)
	}

	claims, err := m.verifier.Verify(ctx, flow.token, m.audience, m.issuer)
	if err != nil {
		return Identity{}, m.rejected(ctx, flow, err)
	}
	flow.claims = claims
	if err := flow.advance(StateVerified); err != nil {
		return Identity{}, m.rejected(ctx, flow, err)
	}

	identity, err := Extract(flow.claims)
	if err != nil {
		return Identity{}, m.rejected(ctx, flow, err)
	}
	flow.identity = identity
	if err := flow.advance(StateAuthorized); err != nil {
		return Identity{}, m.rejected(ctx, flow, err)
	}
	return flow.identity, nil
}

// ===========================================================================
// Header parsing
// ===========================================================================

// parseBearer accepts exactly "Bearer <token>": one space, case-sensitive
// scheme, non-empty token.
func parseBearer(header string) (string, error) {
	if header == "" {
		return "", apperr.New(apperr.CodeAuthNotFound, msgHeaderMissing)
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", apperr.New(apperr.CodeAuthNotFound, msgHeaderFormat)
	}
	return parts[1], nil
}

// ===========================================================================
// Rejection
// ===========================================================================

// rejected moves flow to Rejected and logs the internal cause next to the
// public code. Key set failures log at error level, everything else at
// warn.
func (m *Middleware) rejected(ctx context.Context, flow *requestFlow, err error) error {
	public := publicRejection(err)
	_ = flow.reject(public)

	attrs := []any{
		"code", string(public.Code),
		"state", string(flow.state),
		"error", err,
	}
	if traceID, ok := TraceIDFromContext(ctx); ok {
		attrs = append(attrs, "trace_id", traceID)
	}
	if public.Code.Category() == "INT" {
		m.logger.ErrorContext(ctx, "auth: request rejected", attrs...)
	} else {
		m.logger.WarnContext(ctx, "auth: request rejected", attrs...)
	}
	return public
}

// publicRejection keeps err's code but replaces its message with one
// that reveals nothing about why verification failed.
func publicRejection(err error) *apperr.Error {
	e, ok := apperr.AsError(err)
	if !ok {
		return apperr.Wrap(err, apperr.CodeInternal, msgUnavailable)
	}
	if e.Code == apperr.CodeAuthNotFound {
		return e
	}
	switch e.Code.Category() {
	case "AUTH":
		return apperr.Wrap(err, e.Code, msgInvalidToken)
	case "VAL":
		return apperr.Wrap(err, e.Code, msgMalformedToken)
	default:
		return apperr.Wrap(err, e.Code, msgUnavailable)
	}
}
