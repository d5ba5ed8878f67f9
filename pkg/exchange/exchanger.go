// Package exchange completes the OAuth2 authorization code grant with a
// PKCE verifier against the identity provider's token endpoint.
//
// An exchange is a single blocking round trip. It is bounded by a timeout
// and a concurrency limit, and it is never retried: authorization codes
// are single use, so every code is recorded in a [CodeLedger] before the
// provider sees it and a second presentation is rejected locally.
//
// Failures are reported as *apperr.Error:
//
//	provider answered with an OAuth2 error  AUTH_011  401
//	code presented twice                    AUTH_012  401
//	malformed request                       VAL_*     400
//	provider unreachable or broken          UNAVAIL_004 503
//	timeout                                 TIMEOUT_004 504
package exchange

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/sync/semaphore"

	"github.com/17ms/zeronote/pkg/auth"
	apperr "github.com/17ms/zeronote/pkg/errors"
	"github.com/17ms/zeronote/pkg/logging"
	"github.com/17ms/zeronote/pkg/metrics"
)

// tracerName is the OpenTelemetry instrumentation scope for exchanges.
const tracerName = "github.com/17ms/zeronote/pkg/exchange"

const (
	// DefaultTimeout bounds one exchange, queueing included.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxConcurrency is the number of provider calls allowed in
	// flight at once.
	DefaultMaxConcurrency = 32

	// PKCE verifier length bounds from RFC 7636 section 4.1.
	minVerifierLen = 43
	maxVerifierLen = 128
)

// Request is one exchange as received from the client. Every field is
// required.
type Request struct {
	ClientID string
	Code     string

	// Verifier is the PKCE code_verifier matching the challenge sent to
	// the authorize endpoint.
	Verifier string

	// RedirectURI must equal the one used to obtain Code.
	RedirectURI string
}

// TokenResponse is what the provider issued. IDToken and RefreshToken are
// empty when the provider did not return them.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// Config configures an Exchanger. ClientSecret never leaves the server.
type Config struct {
	ClientID     string
	ClientSecret auth.Secret
	AuthURL      string
	TokenURL     string

	// RedirectURIs, when non-empty, is the exact allow-list for the
	// redirect_uri of a request.
	RedirectURIs []string

	// Timeout bounds the whole exchange including queueing. Defaults to
	// DefaultTimeout.
	Timeout time.Duration

	// MaxConcurrency bounds in-flight provider calls. Defaults to
	// DefaultMaxConcurrency.
	MaxConcurrency int64

	// Ledger defaults to a MemoryLedger.
	Ledger  CodeLedger
	CodeTTL time.Duration

	// Client is used for the token request. Defaults to http.DefaultClient.
	Client  *http.Client
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Exchanger trades authorization codes for tokens. It is safe for
// concurrent use; callers beyond MaxConcurrency queue until a slot frees
// or their timeout expires.
type Exchanger struct {
	oauth     oauth2.Config
	redirects []string
	timeout   time.Duration
	sem       *semaphore.Weighted
	ledger    CodeLedger
	codeTTL   time.Duration
	client    *http.Client
	tracer    trace.Tracer
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// New validates cfg. Missing endpoints or credentials are
// [apperr.CodeInternalConfiguration].
func New(cfg Config) (*Exchanger, error) {
	if cfg.ClientID == "" || cfg.ClientSecret.Value() == "" {
		return nil, apperr.New(apperr.CodeInternalConfiguration, "exchange: client id and secret are required")
	}
	for _, raw := range []string{cfg.AuthURL, cfg.TokenURL} {
		if !isAbsoluteURL(raw) {
			return nil, apperr.Newf(apperr.CodeInternalConfiguration,
				"exchange: endpoint %q must be an absolute URL", raw)
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.Ledger == nil {
		cfg.Ledger = NewMemoryLedger()
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = DefaultCodeTTL
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	logger := logging.OrDefault(cfg.Logger)

	return &Exchanger{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret.Value(),
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		redirects: slices.Clone(cfg.RedirectURIs),
		timeout:   cfg.Timeout,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrency),
		ledger:    cfg.Ledger,
		codeTTL:   cfg.CodeTTL,
		client:    cfg.Client,
		tracer:    otel.Tracer(tracerName),
		logger:    logger,
		metrics:   cfg.Metrics,
	}, nil
}

// ===========================================================================
// Exchange
// ===========================================================================

// Exchange trades req.Code for tokens.
//
// The steps are validate, acquire a concurrency slot, consume the code in
// the ledger, then call the provider. A request that fails validation
// never touches the ledger, so a typo does not burn a good code. Once
// consumed the code stays consumed even if the provider call fails.
func (e *Exchanger) Exchange(ctx context.Context, req Request) (resp *TokenResponse, err error) {
	ctx, span := e.tracer.Start(ctx, "exchange.Exchanger.Exchange", trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		outcome := metrics.ResultOK
		if err != nil {
			outcome = string(apperr.GetCode(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		e.metrics.ObserveExchange(outcome)
		span.End()
	}()

	if err := e.validate(req); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// Queue time counts against the timeout.
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, classifyContext(err)
	}
	defer e.sem.Release(1)

	if err := e.ledger.Consume(ctx, req.Code, e.codeTTL); err != nil {
		if apperr.HasCode(err, apperr.CodeCodeReplayed) {
			e.logger.WarnContext(ctx, "authorization code replayed",
				slog.String("code", string(apperr.CodeCodeReplayed)))
		}
		return nil, err
	}

	cfg := e.oauth
	cfg.RedirectURL = req.RedirectURI
	start := time.Now()
	tok, err := cfg.Exchange(
		context.WithValue(ctx, oauth2.HTTPClient, e.client),
		req.Code,
		oauth2.VerifierOption(req.Verifier),
		oauth2.SetAuthURLParam("client_id", req.ClientID),
	)
	span.SetAttributes(attribute.Int64("exchange.duration_ms", time.Since(start).Milliseconds()))
	if err != nil {
		err = e.classify(err)
		e.logger.WarnContext(ctx, "authorization code exchange failed",
			slog.String("code", string(apperr.GetCode(err))),
			slog.Any("error", err))
		return nil, err
	}

	resp = &TokenResponse{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		ExpiresIn:    tok.ExpiresIn,
		RefreshToken: tok.RefreshToken,
	}
	// oauth2 folds expires_in into Expiry for most providers.
	if resp.ExpiresIn == 0 && !tok.Expiry.IsZero() {
		resp.ExpiresIn = int64(time.Until(tok.Expiry).Round(time.Second).Seconds())
	}
	if id, ok := tok.Extra("id_token").(string); ok {
		resp.IDToken = id
	}
	e.logger.DebugContext(ctx, "authorization code exchanged",
		slog.Bool("has_id_token", resp.IDToken != ""),
		slog.Bool("has_refresh_token", resp.RefreshToken != ""))
	return resp, nil
}

// validate checks req locally. Missing fields come first so the caller
// sees the most basic problem.
func (e *Exchanger) validate(req Request) error {
	switch {
	case req.ClientID == "":
		return apperr.New(apperr.CodeValidationRequired, "client_id is required")
	case req.Code == "":
		return apperr.New(apperr.CodeValidationRequired, "code is required")
	case req.Verifier == "":
		return apperr.New(apperr.CodeValidationRequired, "code_verifier is required")
	case req.RedirectURI == "":
		return apperr.New(apperr.CodeValidationRequired, "redirect_uri is required")
	}
	if req.ClientID != e.oauth.ClientID {
		return apperr.New(apperr.CodeValidation, "client_id does not match this service")
	}
	if !validVerifier(req.Verifier) {
		return apperr.New(apperr.CodeValidationFormat, "code_verifier must be 43-128 unreserved characters")
	}
	if !isAbsoluteURL(req.RedirectURI) {
		return apperr.New(apperr.CodeValidationFormat, "redirect_uri must be an absolute URL")
	}
	if len(e.redirects) > 0 && !slices.Contains(e.redirects, req.RedirectURI) {
		return apperr.New(apperr.CodeValidation, "redirect_uri is not registered")
	}
	return nil
}

// classify maps an oauth2 error. Provider OAuth2 errors keep their error
// code and description as details.
func (e *Exchanger) classify(err error) error {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		details := map[string]any{"error": rErr.ErrorCode}
		if rErr.ErrorDescription != "" {
			details["error_description"] = rErr.ErrorDescription
		}
		if rErr.Response != nil {
			details["status"] = rErr.Response.StatusCode
		}
		return apperr.Wrap(err, apperr.CodeExchangeRejected, "exchange: provider rejected the authorization code").
			WithDetails(details)
	}
	return classifyContext(err)
}

// classifyContext maps deadline and network timeouts to
// [apperr.CodeExchangeTimeout] and every other transport failure,
// including cancellation, to [apperr.CodeExchangeUnavailable].
func classifyContext(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperr.Wrap(err, apperr.CodeExchangeTimeout, "exchange: token endpoint timed out")
	}
	return apperr.Wrap(err, apperr.CodeExchangeUnavailable, "exchange: token endpoint unavailable")
}

// validVerifier checks RFC 7636 section 4.1: 43-128 characters from
// [A-Z] / [a-z] / [0-9] / "-" / "." / "_" / "~".
func validVerifier(v string) bool {
	if len(v) < minVerifierLen || len(v) > maxVerifierLen {
		return false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		case c == '-', c == '.', c == '_', c == '~':
		default:
			return false
		}
	}
	return true
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.IsAbs() && u.Host != ""
}
