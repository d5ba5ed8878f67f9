package auth

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	apperr "github.com/17ms/zeronote/pkg/errors"
	"github.com/17ms/zeronote/pkg/logging"
	"github.com/17ms/zeronote/pkg/metrics"
)

// tracerName is the OpenTelemetry instrumentation scope for key set
// fetches and token verification.
const tracerName = "github.com/17ms/zeronote/pkg/auth"

// maxKeySetBytes bounds the key set response body.
const maxKeySetBytes = 1 << 20

const (
	// DefaultKeySetTTL is how long a fetched key set is trusted before a
	// lookup triggers a refetch. Providers rotate keys far less often.
	DefaultKeySetTTL = time.Hour

	// DefaultFetchTimeout bounds a single JWKS request.
	DefaultFetchTimeout = 5 * time.Second
)

// KeyFamily is the public key algorithm family of a signing key.
type KeyFamily string

const (
	// FamilyRSA keys verify RS256, RS384 and RS512 signatures.
	FamilyRSA KeyFamily = "RSA"

	// FamilyEC keys verify ES256, ES384 and ES512 signatures.
	FamilyEC KeyFamily = "EC"
)

// SigningKey is one usable verification key from the provider's set.
type SigningKey struct {
	// KeyID is the "kid" member tokens use to select the key.
	KeyID string

	// Algorithm is the key's "alg" member, empty when the set omits it.
	Algorithm string

	Family KeyFamily

	// Public is an *rsa.PublicKey or *ecdsa.PublicKey.
	Public crypto.PublicKey
}

// HTTPClient is satisfied by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// KeySource resolves a key id to a verification key. [KeySetCache] is
// the production implementation; tests may substitute a fixed map.
type KeySource interface {
	Key(ctx context.Context, kid string) (SigningKey, error)
}

// KeySetConfig configures a [KeySetCache].
type KeySetConfig struct {
	// URL is the absolute JWKS endpoint.
	URL string

	// TTL bounds how long a fetched set is served before it is refetched.
	// Defaults to DefaultKeySetTTL.
	TTL time.Duration

	// FetchTimeout bounds one fetch, independent of any caller's context.
	// Defaults to DefaultFetchTimeout.
	FetchTimeout time.Duration

	// MinRefreshInterval, when positive, stops a lookup for an unknown kid
	// from refetching a set younger than the interval. Zero refetches on
	// every miss.
	MinRefreshInterval time.Duration

	// Client performs the fetch. Defaults to a fresh *http.Client.
	Client HTTPClient

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics records fetch latency and outcome. Nil disables recording.
	Metrics *metrics.Metrics
}

// keySnapshot is one fetched key set. It is never mutated after being
// stored, so readers need no lock.
type keySnapshot struct {
	keys      map[string]SigningKey
	fetchedAt time.Time
}

// KeySetCache caches the provider's signing keys. Readers see an
// immutable snapshot; a refresh builds a new map and swaps it in. At most
// one fetch is in flight at a time and concurrent callers share its
// result. KeySetCache is safe for concurrent use.
type KeySetCache struct {
	cfg      KeySetConfig
	snapshot atomic.Pointer[keySnapshot]
	group    singleflight.Group
	tracer   trace.Tracer
	logger   *slog.Logger
}

var _ KeySource = (*KeySetCache)(nil)

// NewKeySetCache validates cfg and returns an empty cache. Nothing is
// fetched until the first lookup or an explicit Refresh.
func NewKeySetCache(cfg KeySetConfig) (*KeySetCache, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, apperr.Newf(apperr.CodeInternalConfiguration,
			"auth: key set URL %q must be an absolute URL", cfg.URL)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultKeySetTTL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	logger := logging.OrDefault(cfg.Logger)
	return &KeySetCache{
		cfg:    cfg,
		tracer: otel.Tracer(tracerName),
		logger: logger,
	}, nil
}

// Key returns the key for kid. The set is refreshed first when it is
// empty, older than the TTL, or lacks kid. A kid still missing after the
// refresh yields [apperr.CodeUnknownKey]; fetch failures yield
// [apperr.CodeKeyFetch]. If ctx ends while waiting on a fetch, Key returns
// ctx.Err() and the fetch continues for other callers.
func (c *KeySetCache) Key(ctx context.Context, kid string) (SigningKey, error) {
	snap := c.snapshot.Load()
	if snap != nil && time.Since(snap.fetchedAt) < c.cfg.TTL {
		if key, ok := snap.keys[kid]; ok {
			return key, nil
		}
		if c.cfg.MinRefreshInterval > 0 && time.Since(snap.fetchedAt) < c.cfg.MinRefreshInterval {
			return SigningKey{}, unknownKey(kid)
		}
	}

	snap, err := c.refresh(ctx)
	if err != nil {
		return SigningKey{}, err
	}
	if key, ok := snap.keys[kid]; ok {
		return key, nil
	}
	return SigningKey{}, unknownKey(kid)
}

// Refresh fetches the key set now, sharing any fetch already in flight.
func (c *KeySetCache) Refresh(ctx context.Context) error {
	_, err := c.refresh(ctx)
	return err
}

// Len reports how many keys the current snapshot holds.
func (c *KeySetCache) Len() int {
	if snap := c.snapshot.Load(); snap != nil {
		return len(snap.keys)
	}
	return 0
}

// unknownKey reports a kid absent from a fresh key set.
func unknownKey(kid string) error {
	return apperr.Newf(apperr.CodeUnknownKey, "auth: no signing key with kid %q", kid)
}

// refresh runs or joins the single in-flight fetch. The fetch is detached
// from ctx so one impatient caller cannot abort it for everyone else; ctx
// only bounds how long this caller waits.
func (c *KeySetCache) refresh(ctx context.Context) (*keySnapshot, error) {
	ch := c.group.DoChan("jwks", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.FetchTimeout)
		defer cancel()

		keys, err := c.fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		snap := &keySnapshot{keys: keys, fetchedAt: time.Now()}
		c.snapshot.Store(snap)
		return snap, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*keySnapshot), nil
	}
}

// fetch performs one JWKS request with span, metrics and logging. Every
// failure is [apperr.CodeKeyFetch].
func (c *KeySetCache) fetch(ctx context.Context) (keys map[string]SigningKey, err error) {
	ctx, span := c.tracer.Start(ctx, "auth.KeySetCache.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.url", c.cfg.URL)),
	)
	start := time.Now()
	defer func() {
		c.cfg.Metrics.ObserveKeyFetch(err, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.logger.WarnContext(ctx, "auth: key set fetch failed", "url", c.cfg.URL, "error", err)
		} else {
			span.SetAttributes(attribute.Int("auth.jwks.keys", len(keys)))
			span.SetStatus(codes.Ok, "")
			c.logger.DebugContext(ctx, "auth: key set refreshed", "url", c.cfg.URL, "keys", len(keys))
		}
		span.End()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeKeyFetch, "auth: failed to build key set request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.cfg.Client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeKeyFetch, "auth: key set request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Newf(apperr.CodeKeyFetch,
			"auth: key set endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetBytes+1))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeKeyFetch, "auth: failed to read key set")
	}
	if len(body) > maxKeySetBytes {
		return nil, apperr.New(apperr.CodeKeyFetch, "auth: key set exceeds 1 MiB")
	}

	keys, err = parseKeySet(body)
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// parseKeySet keeps RSA and EC signature keys that carry a kid. Anything
// else in the set is ignored. A set with no usable key is an error.
func parseKeySet(body []byte) (map[string]SigningKey, error) {
	set, err := jwk.Parse(body)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeKeyFetch, "auth: key set is not a valid JWKS document")
	}

	keys := make(map[string]SigningKey, set.Len())
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		kid := key.KeyID()
		if kid == "" {
			continue
		}
		if use := key.KeyUsage(); use != "" && use != string(jwk.ForSignature) {
			continue
		}

		var family KeyFamily
		switch key.KeyType() {
		case jwa.RSA:
			family = FamilyRSA
		case jwa.EC:
			family = FamilyEC
		default:
			continue
		}

		raw, err := jwk.PublicRawKeyOf(key)
		if err != nil {
			continue
		}
		switch raw.(type) {
		case *rsa.PublicKey, *ecdsa.PublicKey:
		default:
			continue
		}

		var alg string
		if a := key.Algorithm(); a != nil {
			alg = a.String()
		}
		keys[kid] = SigningKey{KeyID: kid, Algorithm: alg, Family: family, Public: raw}
	}

	if len(keys) == 0 {
		return nil, apperr.New(apperr.CodeKeyFetch, "auth: key set contains no usable signing keys")
	}
	return keys, nil
}

// String is used in logs.
func (k SigningKey) String() string {
	return fmt.Sprintf("%s/%s(%s)", k.Family, k.KeyID, k.Algorithm)
}
