// Command zeronote serves the task API, the authorization code exchange
// endpoint, health and metrics.
//
// Configuration is read from .env, an optional YAML/JSON file named by
// ZERONOTE_CONFIG and the environment:
//
//	COGNITO_DOMAIN=https://zeronote.auth.eu-north-1.amazoncognito.com \
//	CLIENT_ID=... CLIENT_SECRET=... KEYSET_POOL_ID=eu-north-1_AbCdEfGhI \
//	DATABASE_URL=postgres://zeronote@localhost:5432/zeronote \
//	go run ./cmd/zeronote
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/17ms/zeronote/pkg/auth"
	"github.com/17ms/zeronote/pkg/clients/postgres"
	"github.com/17ms/zeronote/pkg/clients/redis"
	"github.com/17ms/zeronote/pkg/config"
	apperr "github.com/17ms/zeronote/pkg/errors"
	"github.com/17ms/zeronote/pkg/exchange"
	"github.com/17ms/zeronote/pkg/lifecycle"
	"github.com/17ms/zeronote/pkg/logging"
	"github.com/17ms/zeronote/pkg/metrics"
	"github.com/17ms/zeronote/pkg/tasks"
)

// serviceName names the logger, the lifecycle service and its spans.
const serviceName = "zeronote"

func main() {
	cfg := config.MustLoad[Config](
		config.New().WithDotEnv(".env").WithFile(os.Getenv("ZERONOTE_CONFIG")),
	)

	logger, syncLogs := logging.New(cfg.Log, serviceName)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, stop, cfg, logger)
	stop()
	if err != nil {
		logger.Error("zeronote exited with error", "error", err)
		_ = syncLogs()
		os.Exit(1)
	}
	_ = syncLogs()
}

// run wires every component, starts the service and blocks until ctx is
// cancelled by a signal or by a server failure calling stop.
func run(ctx context.Context, stop context.CancelFunc, cfg Config, logger *slog.Logger) error {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	var (
		closers []func()
		checks  []lifecycle.Option
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	store, err := openStore(ctx, cfg, logger, &closers, &checks)
	if err != nil {
		closeAll()
		return err
	}
	ledger, err := openLedger(ctx, cfg, &closers, &checks)
	if err != nil {
		closeAll()
		return err
	}

	keys, err := auth.NewKeySetCache(auth.KeySetConfig{
		URL:                cfg.Provider.JWKSURL,
		TTL:                cfg.Provider.KeySetTTL,
		FetchTimeout:       cfg.Provider.FetchTimeout,
		MinRefreshInterval: cfg.Provider.MinRefreshInterval,
		Logger:             logger,
		Metrics:            m,
	})
	if err != nil {
		closeAll()
		return err
	}
	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Keys:      keys,
		TokenUses: cfg.Provider.TokenUse,
		CacheTTL:  cfg.Provider.ClaimsCacheTTL,
		Logger:    logger,
		Metrics:   m,
	})
	if err != nil {
		closeAll()
		return err
	}
	mw, err := auth.NewMiddleware(auth.MiddlewareConfig{
		Verifier: verifier,
		Audience: cfg.Provider.Audience,
		Issuer:   cfg.Provider.Issuer,
		Logger:   logger,
		Metrics:  m,
	})
	if err != nil {
		closeAll()
		return err
	}
	exchanger, err := exchange.New(exchange.Config{
		ClientID:       cfg.Provider.ClientID,
		ClientSecret:   cfg.Provider.ClientSecret,
		AuthURL:        cfg.Provider.AuthURL,
		TokenURL:       cfg.Provider.TokenURL,
		RedirectURIs:   cfg.Provider.RedirectURIs,
		Timeout:        cfg.Exchange.Timeout,
		MaxConcurrency: cfg.Exchange.MaxConcurrency,
		Ledger:         ledger,
		CodeTTL:        cfg.Exchange.CodeTTL,
		Logger:         logger,
		Metrics:        m,
	})
	if err != nil {
		closeAll()
		return err
	}

	var svc *lifecycle.Service
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		Handler: newRouter(routes{
			Tasks:    tasks.NewHandler(store, logger).Routes(),
			Token:    exchange.NewHandler(exchanger, logger),
			Authn:    mw.Handler,
			Health:   func(ctx context.Context) error { return svc.Health(ctx) },
			Info:     func() lifecycle.Info { return svc.Info() },
			Gatherer: reg,
			Metrics:  m,
		}),
	}

	opts := append([]lifecycle.Option{
		lifecycle.WithLogger(logger),
		lifecycle.WithTracerProvider(tp),
		lifecycle.WithHealthCheck("jwks", func(context.Context) error {
			if keys.Len() == 0 {
				return apperr.New(apperr.CodeKeyFetch, "no signing keys loaded")
			}
			return nil
		}),
		lifecycle.WithOnStart(func(ctx context.Context) error {
			if err := keys.Refresh(ctx); err != nil {
				// Verification refetches on demand; a cold cache is not fatal.
				logger.WarnContext(ctx, "initial key set fetch failed", "error", err)
			}
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return apperr.Wrapf(err, apperr.CodeUnavailable, "listen on %s", srv.Addr)
			}
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server failed", "error", err)
					stop()
				}
			}()
			logger.InfoContext(ctx, "http server listening", "addr", ln.Addr().String())
			return nil
		}),
		lifecycle.WithOnStop(func(ctx context.Context) error {
			err := srv.Shutdown(ctx)
			closeAll()
			return errors.Join(err, tp.Shutdown(ctx))
		}),
		lifecycle.OnStateChange(func(old, new lifecycle.State) {
			logger.Info("state transition", "from", old.String(), "to", new.String())
		}),
	}, checks...)

	svc, err = lifecycle.New(serviceName, cfg.Server.Version, opts...)
	if err != nil {
		closeAll()
		return err
	}
	if err := svc.Start(ctx); err != nil {
		closeAll()
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return svc.Stop(stopCtx)
}

// openStore opens the task store selected by cfg.Store. For Postgres it
// runs migrations and registers the pool's close and health check.
func openStore(ctx context.Context, cfg Config, logger *slog.Logger, closers *[]func(), checks *[]lifecycle.Option) (tasks.Store, error) {
	if cfg.Store == BackendMemory {
		logger.Warn("using in-memory task store; tasks are lost on restart")
		return tasks.NewMemoryStore(), nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Postgres.ConnectTimeout)
	defer cancel()
	client, err := postgres.NewClient(connectCtx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	*closers = append(*closers, client.Close)
	*checks = append(*checks, lifecycle.WithHealthCheck("postgres", client.Health))

	db, err := client.StdDB()
	if err != nil {
		return nil, err
	}
	defer db.Close()
	if err := tasks.Migrate(ctx, db, logger); err != nil {
		return nil, err
	}
	return tasks.NewPostgresStore(client), nil
}

// openLedger opens the exchange code ledger selected by
// cfg.Exchange.Ledger. The Redis ledger registers its close and health
// check; the memory ledger needs neither.
func openLedger(ctx context.Context, cfg Config, closers *[]func(), checks *[]lifecycle.Option) (exchange.CodeLedger, error) {
	if cfg.Exchange.Ledger != BackendRedis {
		return exchange.NewMemoryLedger(), nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout+time.Second)
	defer cancel()
	client, err := redis.NewClient(dialCtx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("exchange ledger: %w", err)
	}
	*closers = append(*closers, func() { _ = client.Close() })
	*checks = append(*checks, lifecycle.WithHealthCheck("redis", client.Health))
	return exchange.NewRedisLedger(client, cfg.Exchange.KeyPrefix), nil
}
