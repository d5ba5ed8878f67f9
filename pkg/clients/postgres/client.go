// Package postgres wraps a pgx connection pool with OpenTelemetry spans
// and zeronote error codes.
package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperr "github.com/17ms/zeronote/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope for queries.
const tracerName = "github.com/17ms/zeronote/pkg/clients/postgres"

// Pool is satisfied by *pgxpool.Pool and by pgxmock.PgxPoolIface.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

var _ Pool = (*pgxpool.Pool)(nil)

// Client runs statements on a pool, recording one client span per call
// and mapping failures to [apperr.CodeTimeoutDatabase] or
// [apperr.CodeInternalDatabase]. Client is safe for concurrent use.
// Create one per database.
type Client struct {
	pool   Pool
	tracer trace.Tracer
	dbName string
}

// NewClient validates cfg, opens a pool and pings the server.
//
// Error codes returned:
//   - [apperr.CodeValidation]: invalid configuration
//   - [apperr.CodeUnavailableDependency]: cannot connect
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeValidation, "postgres: invalid configuration")
	}
	poolCfg, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeUnavailableDependency, "postgres: failed to create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperr.Wrap(err, apperr.CodeUnavailableDependency, "postgres: failed to connect to database")
	}

	return &Client{
		pool:   pool,
		tracer: otel.Tracer(tracerName),
		dbName: poolCfg.ConnConfig.Database,
	}, nil
}

// NewFromPool wraps an existing pool, typically pgxmock in tests.
func NewFromPool(pool Pool, dbName string) *Client {
	return &Client{pool: pool, tracer: otel.Tracer(tracerName), dbName: dbName}
}

// ===========================================================================
// Statements
// ===========================================================================

// Query runs a statement returning rows. The caller closes the rows.
func (c *Client) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	ctx, span := c.startSpan(ctx, "Query", sql)
	rows, err := c.pool.Query(ctx, sql, args...)
	finishSpan(span, err)
	if err != nil {
		return nil, wrapError(err, "postgres: query failed")
	}
	return rows, nil
}

// QueryRow defers errors to Scan, so the span only records the call.
// Callers classify scan errors with WrapError.
func (c *Client) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	ctx, span := c.startSpan(ctx, "QueryRow", sql)
	defer span.End()
	return c.pool.QueryRow(ctx, sql, args...)
}

// Exec runs a statement returning no rows.
func (c *Client) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	ctx, span := c.startSpan(ctx, "Exec", sql)
	tag, err := c.pool.Exec(ctx, sql, args...)
	finishSpan(span, err)
	if err != nil {
		return tag, wrapError(err, "postgres: exec failed")
	}
	return tag, nil
}

// Health pings the database, applying DefaultHealthTimeout when ctx has no
// deadline.
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Health", "SELECT 1")
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}
	err := c.pool.Ping(ctx)
	finishSpan(span, err)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeUnavailableDependency, "postgres: health check failed")
	}
	return nil
}

// StdDB exposes the pool through database/sql for tools that need it,
// such as the migration runner. Closing the returned DB does not close
// the pool.
func (c *Client) StdDB() (*sql.DB, error) {
	pool, ok := c.pool.(*pgxpool.Pool)
	if !ok {
		return nil, apperr.New(apperr.CodeInternalConfiguration, "postgres: pool does not support database/sql")
	}
	return stdlib.OpenDBFromPool(pool), nil
}

// Close closes the pool. Queries in flight finish first.
func (c *Client) Close() {
	c.pool.Close()
}

// ===========================================================================
// Tracing and error mapping
// ===========================================================================

// startSpan opens a client span named postgres.<op> with the database
// semantic attributes.
func (c *Client) startSpan(ctx context.Context, op, sql string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "postgres."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.name", c.dbName),
		attribute.String("db.statement", truncateSQL(sql)),
	)
	return ctx, span
}

// finishSpan records err, if any, and ends span.
func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// WrapError classifies a database error. Deadline and cancellation become
// TIMEOUT_002; pgx.ErrNoRows is left for the caller to map, so it is
// returned unchanged; anything else is INT_002.
func WrapError(err error, message string) error {
	if err == nil || errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	return wrapError(err, message)
}

// wrapError is WrapError for errors already known not to be ErrNoRows.
func wrapError(err error, message string) *apperr.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperr.Wrap(err, apperr.CodeTimeoutDatabase, message)
	}
	return apperr.Wrap(err, apperr.CodeInternalDatabase, message)
}
