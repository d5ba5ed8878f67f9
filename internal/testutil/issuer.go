package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/require"
)

// JWKSPath is where Issuer serves its key set.
const JWKSPath = "/.well-known/jwks.json"

// Issuer is an in-process identity provider for tests. It serves a JWKS
// built from one RSA and one P-256 key, counts how often the key set is
// fetched, and mints tokens signed with either key.
type Issuer struct {
	server *httptest.Server

	mu     sync.RWMutex
	rsaKey *rsa.PrivateKey
	rsaKID string
	ecKey  *ecdsa.PrivateKey
	ecKID  string
	status int
	delay  time.Duration
	body   []byte

	hits atomic.Int64
}

// NewIssuer starts an Issuer that is closed when the test ends.
func NewIssuer(t testing.TB) *Issuer {
	t.Helper()

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	iss := &Issuer{
		rsaKey: rsaKey,
		rsaKID: "rsa-1",
		ecKey:  ecKey,
		ecKID:  "ec-1",
		status: http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(JWKSPath, iss.handleJWKS)
	iss.server = httptest.NewServer(mux)
	t.Cleanup(iss.server.Close)
	return iss
}

// URL is the issuer identifier, the base URL of the test server.
func (i *Issuer) URL() string { return i.server.URL }

// JWKSURL is the absolute key set URL.
func (i *Issuer) JWKSURL() string { return i.server.URL + JWKSPath }

// Client returns an HTTP client for the test server.
func (i *Issuer) Client() *http.Client { return i.server.Client() }

// Hits reports how many key set requests the issuer has served.
func (i *Issuer) Hits() int64 { return i.hits.Load() }

// RSAKeyID names the currently published RSA key.
func (i *Issuer) RSAKeyID() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.rsaKID
}

// ECKeyID names the published P-256 key.
func (i *Issuer) ECKeyID() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.ecKID
}

// SetDelay slows every key set response by d.
func (i *Issuer) SetDelay(d time.Duration) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.delay = d
}

// SetStatus makes the key set endpoint answer with code.
func (i *Issuer) SetStatus(code int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.status = code
}

// SetBody overrides the key set response body; nil restores the real set.
func (i *Issuer) SetBody(body []byte) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.body = body
}

// RotateRSA replaces the RSA key with a new one published under kid. The
// old key is no longer served.
func (i *Issuer) RotateRSA(t testing.TB, kid string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	i.mu.Lock()
	defer i.mu.Unlock()
	i.rsaKey = key
	i.rsaKID = kid
}

// Claims returns a valid access-token claim set for sub issued to aud.
func (i *Issuer) Claims(sub, aud string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":       i.URL(),
		"sub":       sub,
		"aud":       aud,
		"iat":       now.Unix(),
		"exp":       now.Add(time.Hour).Unix(),
		"token_use": "access",
		"scope":     "openid email",
		"username":  "user-" + sub,
	}
}

// Mint signs claims with RS256 under the current RSA key.
func (i *Issuer) Mint(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	return i.MintWith(t, jwt.SigningMethodRS256, i.RSAKeyID(), claims)
}

// MintWith signs claims with method and places kid in the header; an
// empty kid omits the header. RS* methods use the RSA key, ES256 the EC
// key, HS* methods a fixed shared secret and "none" produces an unsigned
// token.
func (i *Issuer) MintWith(t testing.TB, method jwt.SigningMethod, kid string, claims jwt.MapClaims) string {
	t.Helper()

	tok := jwt.NewWithClaims(method, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}

	i.mu.RLock()
	var key any
	switch method.Alg() {
	case "RS256", "RS384", "RS512":
		key = i.rsaKey
	case "ES256":
		key = i.ecKey
	case "HS256", "HS384", "HS512":
		key = []byte("shared-secret-that-is-not-a-public-key")
	case "none":
		key = jwt.UnsafeAllowNoneSignatureType
	}
	i.mu.RUnlock()

	signed, err := tok.SignedString(key)
	require.NoError(t, err)
	return signed
}

// MintForeign signs claims with RS256 using a freshly generated RSA key
// that the JWKS never publishes, under the issuer's current RSA kid. The
// token is well formed and names a known key, but its signature cannot
// verify.
func (i *Issuer) MintForeign(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = i.RSAKeyID()
	signed, err := tok.SignedString(key)
	require.NoError(t, err)
	return signed
}

func (i *Issuer) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	i.hits.Add(1)

	i.mu.RLock()
	delay, status, body := i.delay, i.status, i.body
	i.mu.RUnlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}
	if body == nil {
		var err error
		body, err = i.keySet()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (i *Issuer) keySet() ([]byte, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	set := jwk.NewSet()
	for _, k := range []struct {
		raw any
		kid string
		alg jwa.SignatureAlgorithm
	}{
		{&i.rsaKey.PublicKey, i.rsaKID, jwa.RS256},
		{&i.ecKey.PublicKey, i.ecKID, jwa.ES256},
	} {
		key, err := jwk.FromRaw(k.raw)
		if err != nil {
			return nil, err
		}
		if err := key.Set(jwk.KeyIDKey, k.kid); err != nil {
			return nil, err
		}
		if err := key.Set(jwk.AlgorithmKey, k.alg); err != nil {
			return nil, err
		}
		if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
			return nil, err
		}
		if err := set.AddKey(key); err != nil {
			return nil, err
		}
	}
	return json.Marshal(set)
}
