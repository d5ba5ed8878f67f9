package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperr "github.com/17ms/zeronote/pkg/errors"
	"github.com/17ms/zeronote/pkg/logging"
	"github.com/17ms/zeronote/pkg/metrics"
)

// ClockSkew is the leeway applied to exp, nbf and iat. A token that
// expired less than ClockSkew ago still verifies.
const ClockSkew = 5 * time.Second

// MaxTokenBytes bounds the size of a bearer token.
const MaxTokenBytes = 8192

// DefaultClaimsCacheTTL bounds how long a verified token is memoised.
const DefaultClaimsCacheTTL = time.Minute

// allowedAlgorithms is the asymmetric allow-list. Symmetric algorithms
// and "none" are rejected before any key is looked up.
var allowedAlgorithms = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}

// VerifiedClaims is the claim set of a token whose signature, validity
// window, audience and issuer have been checked. Values built outside
// the verifier are refused by [Extract].
type VerifiedClaims struct {
	Subject string

	// Audience is the aud claim, or client_id when aud is absent, as on
	// Cognito access tokens.
	Audience []string

	Issuer    string
	ExpiresAt time.Time
	IssuedAt  time.Time

	// TokenUse is Cognito's token_use claim: "access" or "id".
	TokenUse string
	ClientID string

	// Username is username, falling back to cognito:username.
	Username string

	// Scopes comes from a space separated scope claim or an scp array.
	Scopes []string

	// Raw holds every claim of the token.
	Raw map[string]any

	sealed bool
}

// clone returns a deep enough copy that callers cannot mutate a cached
// entry through the slices or map.
func (c *VerifiedClaims) clone() *VerifiedClaims {
	out := *c
	out.Audience = slices.Clone(c.Audience)
	out.Scopes = slices.Clone(c.Scopes)
	out.Raw = maps.Clone(c.Raw)
	return &out
}

// TokenVerifier is what the middleware needs from a [Verifier].
type TokenVerifier interface {
	// Verify checks raw against the expected audience and issuer.
	Verify(ctx context.Context, raw, expectedAudience, expectedIssuer string) (*VerifiedClaims, error)
}

// VerifierConfig configures a [Verifier].
type VerifierConfig struct {
	// Keys resolves the kid of each token. Required.
	Keys KeySource

	// TokenUses, when set, restricts the token_use claim (e.g. "access").
	TokenUses []string

	// CacheTTL bounds memoisation of verified tokens. Zero selects
	// DefaultClaimsCacheTTL; a negative value disables the cache.
	CacheTTL time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics counts verification outcomes by error code. Nil disables
	// recording.
	Metrics *metrics.Metrics
}

// Verifier checks bearer tokens against the provider's key set. It holds
// no per-request state and is safe for concurrent use.
type Verifier struct {
	keys      KeySource
	tokenUses []string
	cacheTTL  time.Duration
	cache     *gocache.Cache
	tracer    trace.Tracer
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

var _ TokenVerifier = (*Verifier)(nil)

// NewVerifier returns a Verifier reading keys from cfg.Keys. A missing
// key source is [apperr.CodeInternalConfiguration].
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if cfg.Keys == nil {
		return nil, apperr.New(apperr.CodeInternalConfiguration, "auth: verifier requires a key source")
	}
	logger := logging.OrDefault(cfg.Logger)
	v := &Verifier{
		keys:      cfg.Keys,
		tokenUses: slices.Clone(cfg.TokenUses),
		cacheTTL:  cfg.CacheTTL,
		tracer:    otel.Tracer(tracerName),
		logger:    logger,
		metrics:   cfg.Metrics,
	}
	if v.cacheTTL == 0 {
		v.cacheTTL = DefaultClaimsCacheTTL
	}
	if v.cacheTTL > 0 {
		v.cache = gocache.New(v.cacheTTL, 2*v.cacheTTL)
	}
	return v, nil
}

// Verify checks raw and returns its claims. Verification is
// deterministic: the same token and expectations yield equal claims
// until the token expires.
//
// Checks run cheapest first: shape and size, claims cache, header and
// algorithm allow-list, key lookup, signature and validity window, then
// audience, issuer and token_use. Each failure carries its own code:
//
//	VAL_005   not a compact JWS or oversized
//	AUTH_010  algorithm outside the allow-list
//	AUTH_005  no key for kid
//	AUTH_006  signature does not verify with that key
//	AUTH_002  expired or not yet valid beyond ClockSkew
//	AUTH_007  audience mismatch
//	AUTH_008  issuer mismatch
//	INT_004   key set could not be fetched
//
// The returned claims are a private copy and may be modified freely.
func (v *Verifier) Verify(ctx context.Context, raw, expectedAudience, expectedIssuer string) (claims *VerifiedClaims, err error) {
	ctx, span := v.tracer.Start(ctx, "auth.Verifier.Verify", trace.WithSpanKind(trace.SpanKindInternal))
	defer func() {
		outcome := metrics.ResultOK
		if err != nil {
			outcome = string(apperr.GetCode(err))
			if outcome == "" {
				outcome = metrics.ResultError
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		v.metrics.ObserveVerification(outcome)
		span.End()
	}()

	if expectedAudience == "" || expectedIssuer == "" {
		return nil, apperr.New(apperr.CodeInternalConfiguration,
			"auth: expected audience and issuer must be configured")
	}
	if raw == "" || len(raw) > MaxTokenBytes || strings.Count(raw, ".") != 2 {
		return nil, apperr.New(apperr.CodeMalformedToken, "auth: token is not a compact JWS")
	}

	cacheKey := claimsCacheKey(raw, expectedAudience, expectedIssuer)
	if v.cache != nil {
		if hit, ok := v.cache.Get(cacheKey); ok {
			span.SetAttributes(attribute.Bool("auth.cache_hit", true))
			return hit.(*VerifiedClaims).clone(), nil
		}
	}

	alg, kid, err := inspectHeader(raw)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("auth.alg", alg), attribute.String("auth.kid", kid))

	key, err := v.keys.Key(ctx, kid)
	if err != nil {
		return nil, err
	}
	if key.Family != familyOf(alg) || (key.Algorithm != "" && key.Algorithm != alg) {
		return nil, apperr.Newf(apperr.CodeBadSignature,
			"auth: key %q cannot verify %s signatures", kid, alg)
	}

	mc := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(raw, mc, func(*jwt.Token) (any, error) {
		return key.Public, nil
	},
		jwt.WithValidMethods(allowedAlgorithms),
		jwt.WithLeeway(ClockSkew),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, classifyParseError(err)
	}

	claims, err = v.checkClaims(mc, expectedAudience, expectedIssuer)
	if err != nil {
		return nil, err
	}

	// Never memoise past the token's own expiry.
	if v.cache != nil {
		ttl := min(v.cacheTTL, time.Until(claims.ExpiresAt))
		if ttl > 0 {
			v.cache.Set(cacheKey, claims.clone(), ttl)
		}
	}
	return claims, nil
}

// inspectHeader decodes the header without verifying anything and
// applies the algorithm allow-list.
func inspectHeader(raw string) (alg, kid string, err error) {
	tok, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenUnverifiable) && tok != nil:
		// Unregistered or missing alg; the allow-list check below rejects it.
	default:
		return "", "", apperr.Wrap(err, apperr.CodeMalformedToken, "auth: token is not a compact JWS")
	}

	alg, _ = tok.Header["alg"].(string)
	if !slices.Contains(allowedAlgorithms, alg) {
		return "", "", apperr.Newf(apperr.CodeUnsupportedAlgorithm,
			"auth: signing algorithm %q is not accepted", alg)
	}
	kid, _ = tok.Header["kid"].(string)
	if kid == "" {
		return "", "", apperr.New(apperr.CodeUnknownKey, "auth: token header carries no kid")
	}
	return alg, kid, nil
}

// familyOf maps an allow-listed algorithm to the key family that can
// verify it.
func familyOf(alg string) KeyFamily {
	if strings.HasPrefix(alg, "ES") {
		return FamilyEC
	}
	return FamilyRSA
}

// classifyParseError maps golang-jwt validation errors to error codes.
// Anything unrecognised is a generic invalid token.
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return apperr.Wrap(err, apperr.CodeBadSignature, "auth: token signature is invalid")
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperr.Wrap(err, apperr.CodeAuthenticationExpired, "auth: token has expired")
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return apperr.Wrap(err, apperr.CodeAuthenticationExpired, "auth: token is not valid yet")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return apperr.Wrap(err, apperr.CodeMalformedToken, "auth: token is malformed")
	default:
		return apperr.Wrap(err, apperr.CodeAuthenticationInvalid, "auth: token claims are invalid")
	}
}

// checkClaims applies the audience, issuer and token_use expectations to
// claims whose signature has already been verified. Issuers compare equal
// modulo one trailing slash.
func (v *Verifier) checkClaims(mc jwt.MapClaims, expectedAudience, expectedIssuer string) (*VerifiedClaims, error) {
	aud, err := mc.GetAudience()
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeAuthenticationInvalid, "auth: aud claim is malformed")
	}
	clientID, _ := mc["client_id"].(string)
	audiences := []string(aud)
	if len(audiences) == 0 && clientID != "" {
		audiences = []string{clientID}
	}
	if !slices.Contains(audiences, expectedAudience) {
		return nil, apperr.New(apperr.CodeAudienceMismatch, "auth: token is not issued for this audience")
	}

	iss, _ := mc["iss"].(string)
	if strings.TrimSuffix(iss, "/") != strings.TrimSuffix(expectedIssuer, "/") {
		return nil, apperr.New(apperr.CodeIssuerMismatch, "auth: token issuer is not trusted")
	}

	tokenUse, _ := mc["token_use"].(string)
	if len(v.tokenUses) > 0 && !slices.Contains(v.tokenUses, tokenUse) {
		return nil, apperr.Newf(apperr.CodeAuthenticationInvalid,
			"auth: token_use %q is not accepted", tokenUse)
	}

	claims := &VerifiedClaims{
		Audience: audiences,
		Issuer:   iss,
		TokenUse: tokenUse,
		ClientID: clientID,
		Scopes:   scopesOf(mc),
		Raw:      map[string]any(maps.Clone(mc)),
		sealed:   true,
	}
	claims.Subject, _ = mc["sub"].(string)
	if exp, _ := mc.GetExpirationTime(); exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if iat, _ := mc.GetIssuedAt(); iat != nil {
		claims.IssuedAt = iat.Time
	}
	claims.Username, _ = mc["username"].(string)
	if claims.Username == "" {
		claims.Username, _ = mc["cognito:username"].(string)
	}
	return claims, nil
}

// scopesOf reads a space separated "scope" claim or a "scp" array.
func scopesOf(mc jwt.MapClaims) []string {
	if s, ok := mc["scope"].(string); ok {
		return strings.Fields(s)
	}
	if list, ok := mc["scp"].([]any); ok {
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func claimsCacheKey(raw, aud, iss string) string {
	h := sha256.New()
	h.Write([]byte(raw))
	h.Write([]byte{0})
	h.Write([]byte(aud))
	h.Write([]byte{0})
	h.Write([]byte(iss))
	return hex.EncodeToString(h.Sum(nil))
}
