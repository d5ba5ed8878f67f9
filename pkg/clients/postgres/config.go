package postgres

import (
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	apperr "github.com/17ms/zeronote/pkg/errors"
)

// maxSQLTruncateLen bounds the statement text recorded on spans.
const maxSQLTruncateLen = 100

// Pool defaults applied by Validate to zero fields.
const (
	// DefaultURL targets a local development database without TLS.
	DefaultURL = "postgres://zeronote@localhost:5432/zeronote?sslmode=disable"

	// DefaultMaxConns is the pool size ceiling.
	DefaultMaxConns int32 = 10

	// DefaultMinConns keeps one warm connection.
	DefaultMinConns int32 = 1

	// DefaultMaxConnLifetime recycles connections hourly.
	DefaultMaxConnLifetime = time.Hour

	// DefaultMaxConnIdleTime closes connections idle this long.
	DefaultMaxConnIdleTime = 30 * time.Minute

	// DefaultConnectTimeout bounds dialing a single connection.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultHealthTimeout bounds Health when the caller's context has no
	// deadline.
	DefaultHealthTimeout = 5 * time.Second
)

// Config holds pool settings. URL is a libpq style URI; sslmode and the
// password travel inside it.
type Config struct {
	URL             string        `yaml:"url" json:"-" env:"URL" envDefault:"postgres://zeronote@localhost:5432/zeronote?sslmode=disable"`
	MaxConns        int32         `yaml:"max_conns" json:"max_conns,omitempty" env:"MAX_CONNS" envDefault:"10"`
	MinConns        int32         `yaml:"min_conns" json:"min_conns,omitempty" env:"MIN_CONNS" envDefault:"1"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" json:"max_conn_lifetime,omitempty" env:"MAX_CONN_LIFETIME" envDefault:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" json:"max_conn_idle_time,omitempty" env:"MAX_CONN_IDLE_TIME" envDefault:"30m"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" json:"connect_timeout,omitempty" env:"CONNECT_TIMEOUT" envDefault:"10s"`
}

// Validate fills zero values with defaults and checks the rest.
func (c *Config) Validate() error {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.MaxConns == 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.MinConns == 0 {
		c.MinConns = DefaultMinConns
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = DefaultMaxConnLifetime
	}
	if c.MaxConnIdleTime == 0 {
		c.MaxConnIdleTime = DefaultMaxConnIdleTime
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}

	u, err := url.Parse(c.URL)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeValidationFormat, "postgres: url is invalid")
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return apperr.Newf(apperr.CodeValidationFormat,
			"postgres: url scheme must be postgres:// or postgresql://, got %q", u.Scheme)
	}
	if c.MaxConns < c.MinConns {
		return apperr.Newf(apperr.CodeValidationRange,
			"postgres: max_conns (%d) must be >= min_conns (%d)", c.MaxConns, c.MinConns)
	}
	return nil
}

// poolConfig converts c into a pgxpool configuration. Validate must have
// run first.
func (c *Config) poolConfig() (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeValidation, "postgres: failed to parse connection string")
	}
	poolCfg.MaxConns = c.MaxConns
	poolCfg.MinConns = c.MinConns
	poolCfg.MaxConnLifetime = c.MaxConnLifetime
	poolCfg.MaxConnIdleTime = c.MaxConnIdleTime
	poolCfg.ConnConfig.ConnectTimeout = c.ConnectTimeout
	return poolCfg, nil
}

// truncateSQL shortens sql for span attributes.
func truncateSQL(sql string) string {
	if len(sql) <= maxSQLTruncateLen {
		return sql
	}
	return sql[:maxSQLTruncateLen] + "..."
}
