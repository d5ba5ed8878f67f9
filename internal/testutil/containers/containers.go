//go:build integration

// Package containers starts throwaway Postgres and Redis instances with
// testcontainers-go for integration tests. Everything here sits behind the
// "integration" build tag so unit test builds never need Docker:
//
//	go test -tags=integration ./pkg/tasks/... ./pkg/exchange/...
//
// Callers terminate the container themselves:
//
//	pg, err := containers.StartPostgres(ctx)
//	if err != nil { ... }
//	defer pg.Container.Terminate(ctx)
package containers

import (
	"context"
	"fmt"

	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// ===========================================================================
// Images and credentials
// ===========================================================================

const (
	// DefaultPostgresImage is the Alpine variant for a small pull.
	DefaultPostgresImage = "docker.io/postgres:16-alpine"

	// DefaultPostgresDatabase is created on container start.
	DefaultPostgresDatabase = "zeronote_test"

	// DefaultPostgresUser owns DefaultPostgresDatabase.
	DefaultPostgresUser = "zeronote"

	// DefaultPostgresPassword is only ever used against ephemeral
	// containers bound to localhost.
	DefaultPostgresPassword = "zeronote"

	// DefaultRedisImage backs the Redis code ledger tests.
	DefaultRedisImage = "docker.io/redis:7-alpine"
)

// ===========================================================================
// PostgreSQL
// ===========================================================================

// PostgresResult is a running Postgres container and its connection URI,
// which already carries sslmode=disable.
type PostgresResult struct {
	Container  *tcpostgres.PostgresContainer
	ConnString string
}

// StartPostgres runs DefaultPostgresImage and waits until it accepts
// connections.
func StartPostgres(ctx context.Context) (*PostgresResult, error) {
	container, err := tcpostgres.Run(ctx,
		DefaultPostgresImage,
		tcpostgres.WithDatabase(DefaultPostgresDatabase),
		tcpostgres.WithUsername(DefaultPostgresUser),
		tcpostgres.WithPassword(DefaultPostgresPassword),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("containers: failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: failed to get connection string: %w", err)
	}
	return &PostgresResult{Container: container, ConnString: connStr}, nil
}

// ===========================================================================
// Redis
// ===========================================================================

// RedisResult is a running Redis container and its redis:// URI.
type RedisResult struct {
	Container  *tcredis.RedisContainer
	ConnString string
}

// StartRedis runs DefaultRedisImage without authentication.
func StartRedis(ctx context.Context) (*RedisResult, error) {
	container, err := tcredis.Run(ctx, DefaultRedisImage)
	if err != nil {
		return nil, fmt.Errorf("containers: failed to start redis container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: failed to get redis connection string: %w", err)
	}
	return &RedisResult{Container: container, ConnString: connStr}, nil
}
