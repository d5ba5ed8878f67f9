package redis

import (
	"fmt"
	"net/url"
	"time"

	apperr "github.com/17ms/zeronote/pkg/errors"
)

// maxStatementTruncateLen bounds the command text recorded on spans, in
// runes.
const maxStatementTruncateLen = 100

// Connection defaults applied by Validate to zero fields.
const (
	// DefaultAddr targets a local development server.
	DefaultAddr = "localhost:6379"

	// DefaultPoolSize is the connection pool size.
	DefaultPoolSize = 10

	// DefaultDialTimeout bounds establishing one connection.
	DefaultDialTimeout = 5 * time.Second

	// DefaultReadTimeout bounds waiting for a reply.
	DefaultReadTimeout = 3 * time.Second

	// DefaultWriteTimeout bounds sending a command.
	DefaultWriteTimeout = 3 * time.Second

	// DefaultHealthTimeout bounds Health when the caller's context has no
	// deadline.
	DefaultHealthTimeout = 5 * time.Second
)

// Secret redacts the Redis password when printed or serialised.
type Secret string

// redacted is printed in place of a Secret.
const redacted = "[REDACTED]"

// String keeps the password out of %s and %v output.
func (s Secret) String() string { return redacted }

// GoString keeps the password out of %#v output.
func (s Secret) GoString() string { return redacted }

// Value returns the raw password for the dialer.
func (s Secret) Value() string { return string(s) }

// MarshalText keeps the password out of JSON and YAML dumps of Config.
func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// Config holds connection settings. When URL is set it takes precedence
// over Addr, Password and DB; pool and timeout settings still apply.
type Config struct {
	URL          string        `yaml:"url" json:"url,omitempty" env:"URL"`
	Addr         string        `yaml:"addr" json:"addr,omitempty" env:"ADDR" envDefault:"localhost:6379"`
	Password     Secret        `yaml:"password" json:"-" env:"PASSWORD"`
	DB           int           `yaml:"db" json:"db" env:"DB"`
	PoolSize     int           `yaml:"pool_size" json:"pool_size,omitempty" env:"POOL_SIZE" envDefault:"10"`
	DialTimeout  time.Duration `yaml:"dial_timeout" json:"dial_timeout,omitempty" env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout,omitempty" env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout,omitempty" env:"WRITE_TIMEOUT" envDefault:"3s"`
}

// Validate fills zero values with defaults and checks the rest.
func (c *Config) Validate() error {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}

	if c.URL != "" {
		u, err := url.Parse(c.URL)
		if err != nil {
			return apperr.Wrap(err, apperr.CodeValidationFormat, "redis: url is invalid")
		}
		if u.Scheme != "redis" && u.Scheme != "rediss" {
			return apperr.Newf(apperr.CodeValidationFormat,
				"redis: url scheme must be redis:// or rediss://, got %q", u.Scheme)
		}
	}
	if c.PoolSize < 1 {
		return apperr.Newf(apperr.CodeValidationRange, "redis: pool_size must be >= 1, got %d", c.PoolSize)
	}
	if c.DB < 0 {
		return apperr.Newf(apperr.CodeValidationRange, "redis: db must be >= 0, got %d", c.DB)
	}
	for name, d := range map[string]time.Duration{
		"dial_timeout":  c.DialTimeout,
		"read_timeout":  c.ReadTimeout,
		"write_timeout": c.WriteTimeout,
	} {
		if d < 0 {
			return apperr.New(apperr.CodeValidationRange, fmt.Sprintf("redis: %s must not be negative", name))
		}
	}
	return nil
}

// truncateStatement shortens s for span attributes without splitting a
// multi-byte character.
func truncateStatement(s string) string {
	runes := []rune(s)
	if len(runes) <= maxStatementTruncateLen {
		return s
	}
	return string(runes[:maxStatementTruncateLen]) + "..."
}
