package main

import (
	"net/url"
	"strings"
	"time"

	"github.com/17ms/zeronote/pkg/auth"
	"github.com/17ms/zeronote/pkg/clients/postgres"
	"github.com/17ms/zeronote/pkg/clients/redis"
	apperr "github.com/17ms/zeronote/pkg/errors"
	"github.com/17ms/zeronote/pkg/logging"
)

// Storage and ledger backends.
const (
	// BackendMemory keeps state in process memory. Valid for STORE and
	// EXCHANGE_LEDGER; state is lost on restart and not shared between
	// replicas.
	BackendMemory = "memory"

	// BackendPostgres stores tasks in the database at DATABASE_URL.
	BackendPostgres = "postgres"

	// BackendRedis shares the exchange code ledger through REDIS_*.
	BackendRedis = "redis"
)

// Config is the whole process configuration. Provider variables keep the
// names the deployment already exports (COGNITO_DOMAIN, CLIENT_ID, ...);
// every other section is prefixed by its env tag.
type Config struct {
	Server   ServerConfig    `yaml:"server" json:"server" env:"SERVER"`
	Provider ProviderConfig  `yaml:"provider" json:"provider"`
	Exchange ExchangeConfig  `yaml:"exchange" json:"exchange" env:"EXCHANGE"`
	Store    string          `yaml:"store" json:"store" env:"STORE" envDefault:"postgres"`
	Postgres postgres.Config `yaml:"postgres" json:"postgres" env:"DATABASE"`
	Redis    redis.Config    `yaml:"redis" json:"redis" env:"REDIS"`
	Log      logging.Config  `yaml:"log" json:"log" env:"LOG"`
}

// ServerConfig configures the HTTP listener and process identity. Every
// variable is prefixed with SERVER_.
type ServerConfig struct {
	Addr              string        `yaml:"addr" json:"addr" env:"ADDR" envDefault:"127.0.0.1:8080"`
	Version           string        `yaml:"version" json:"version" env:"VERSION" envDefault:"0.1.0"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" json:"read_header_timeout" env:"READ_HEADER_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// ProviderConfig describes the Cognito user pool and app client. Issuer,
// JWKSURL and Audience are derived in Validate unless set explicitly.
type ProviderConfig struct {
	Domain       string      `yaml:"domain" json:"domain" env:"COGNITO_DOMAIN" required:"true"`
	ClientID     string      `yaml:"client_id" json:"client_id" env:"CLIENT_ID" required:"true"`
	ClientSecret auth.Secret `yaml:"client_secret" json:"-" env:"CLIENT_SECRET" required:"true"`
	PoolID       string      `yaml:"pool_id" json:"pool_id" env:"KEYSET_POOL_ID" required:"true"`
	RedirectURIs []string    `yaml:"redirect_uris" json:"redirect_uris" env:"REDIRECT_URL"`

	Audience string   `yaml:"audience" json:"audience" env:"AUDIENCE"`
	Issuer   string   `yaml:"issuer" json:"issuer" env:"ISSUER"`
	JWKSURL  string   `yaml:"jwks_url" json:"jwks_url" env:"JWKS_URL"`
	TokenUse []string `yaml:"token_use" json:"token_use" env:"TOKEN_USE"`

	// Key set and claims cache tuning. MinRefreshInterval defaults to 0,
	// which lets every unknown kid trigger a refetch.
	KeySetTTL          time.Duration `yaml:"keyset_ttl" json:"keyset_ttl" env:"KEYSET_TTL" envDefault:"1h"`
	FetchTimeout       time.Duration `yaml:"fetch_timeout" json:"fetch_timeout" env:"KEYSET_FETCH_TIMEOUT" envDefault:"5s"`
	MinRefreshInterval time.Duration `yaml:"min_refresh_interval" json:"min_refresh_interval" env:"KEYSET_MIN_REFRESH" envDefault:"0s"`
	ClaimsCacheTTL     time.Duration `yaml:"claims_cache_ttl" json:"claims_cache_ttl" env:"CLAIMS_CACHE_TTL" envDefault:"1m"`

	AuthURL  string `yaml:"-" json:"auth_url"`
	TokenURL string `yaml:"-" json:"token_url"`
}

// ExchangeConfig configures POST /token. Every variable is prefixed with
// EXCHANGE_.
type ExchangeConfig struct {
	Ledger         string        `yaml:"ledger" json:"ledger" env:"LEDGER" envDefault:"memory"`
	KeyPrefix      string        `yaml:"key_prefix" json:"key_prefix" env:"KEY_PREFIX"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT" envDefault:"10s"`
	MaxConcurrency int64         `yaml:"max_concurrency" json:"max_concurrency" env:"MAX_CONCURRENCY" envDefault:"32"`
	CodeTTL        time.Duration `yaml:"code_ttl" json:"code_ttl" env:"CODE_TTL" envDefault:"10m"`
}

// Validate checks backend selections and derives the provider endpoints.
func (c *Config) Validate() error {
	switch c.Store {
	case BackendPostgres, BackendMemory:
	default:
		return apperr.Newf(apperr.CodeValidation, "config: unknown store %q", c.Store)
	}
	switch c.Exchange.Ledger {
	case BackendMemory, BackendRedis:
	default:
		return apperr.Newf(apperr.CodeValidation, "config: unknown exchange ledger %q", c.Exchange.Ledger)
	}
	if c.Store == BackendPostgres {
		if err := c.Postgres.Validate(); err != nil {
			return err
		}
	}
	if c.Exchange.Ledger == BackendRedis {
		if err := c.Redis.Validate(); err != nil {
			return err
		}
	}
	return c.Provider.derive()
}

// derive normalises Domain and fills Issuer, JWKSURL and Audience from
// the pool id and client id when they are not set explicitly.
func (p *ProviderConfig) derive() error {
	domain := strings.TrimSuffix(strings.TrimSpace(p.Domain), "/")
	if !strings.Contains(domain, "://") {
		domain = "https://" + domain
	}
	u, err := url.Parse(domain)
	if err != nil || u.Host == "" {
		return apperr.Newf(apperr.CodeValidationFormat, "config: COGNITO_DOMAIN %q is not a valid URL", p.Domain)
	}
	p.Domain = domain

	region, _, ok := strings.Cut(p.PoolID, "_")
	if !ok || region == "" {
		return apperr.Newf(apperr.CodeValidationFormat,
			"config: KEYSET_POOL_ID %q must look like <region>_<id>", p.PoolID)
	}
	if p.Issuer == "" {
		p.Issuer = "https://cognito-idp." + region + ".amazonaws.com/" + p.PoolID
	}
	if p.JWKSURL == "" {
		p.JWKSURL = strings.TrimSuffix(p.Issuer, "/") + "/.well-known/jwks.json"
	}
	if p.Audience == "" {
		p.Audience = p.ClientID
	}
	p.AuthURL = domain + "/oauth2/authorize"
	p.TokenURL = domain + "/oauth2/token"
	return nil
}
