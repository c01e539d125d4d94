package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/akave-ai/gameevents/internal/config"
	"github.com/akave-ai/gameevents/internal/database"
	"github.com/akave-ai/gameevents/internal/dedup"
	"github.com/akave-ai/gameevents/internal/logger"
	"github.com/akave-ai/gameevents/internal/metrics"
	"github.com/akave-ai/gameevents/internal/observability"
	"github.com/akave-ai/gameevents/internal/pipeline"
	"github.com/akave-ai/gameevents/internal/repository"
	"github.com/akave-ai/gameevents/internal/server"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		boot := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("could not load config")
	}
	log := logger.New(cfg.Observability)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("server exited")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	nrApp, err := observability.NewRelic(cfg.Observability)
	if err != nil {
		return err
	}
	if nrApp != nil {
		defer nrApp.Shutdown(5 * time.Second)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	backend, err := openBackend(ctx, cfg, log, nrApp != nil)
	if err != nil {
		return fmt.Errorf("dedup backend %s: %w", cfg.Dedup.Backend, err)
	}
	defer backend.close()

	store := dedup.NewStore(backend.client, dedup.DefaultTTL,
		dedup.WithLogger(log.With().Str("component", "dedup").Logger()),
		dedup.WithFailOpenHook(m.FailOpen),
	)
	defer store.Close()

	orch := pipeline.New(store,
		pipeline.WithLogger(log.With().Str("component", "pipeline").Logger()),
		pipeline.WithRecorder(m),
		pipeline.WithRetryPolicy(retryPolicy(cfg.Retry)),
		pipeline.WithNewRelic(nrApp),
	)

	srv := server.New(cfg, server.Deps{
		Batches:  orch,
		Gatherer: reg,
		Expirer:  backend.expirer,
		Backend:  cfg.Dedup.Backend,
		Logger:   log,
	})
	return srv.Start(ctx)
}

func retryPolicy(rc config.RetryConfig) pipeline.RetryPolicy {
	p := pipeline.DefaultRetryPolicy()
	p.MaxAttempts = rc.MaxAttempts
	p.Multiplier = rc.Multiplier
	p.Min = rc.MinWait
	p.Max = rc.MaxWait
	return p
}

type backend struct {
	client  dedup.Client
	expirer dedup.Expirer
	close   func()
}

func openBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger, traceNR bool) (backend, error) {
	dc := cfg.Dedup
	noop := func() {}

	switch dc.Backend {
	case "memory":
		return backend{client: dedup.NewMemoryClient(dc.MaxKeys), close: noop}, nil

	case "sqlite":
		c, err := dedup.NewSQLiteClient(dc.SQLitePath)
		if err != nil {
			return backend{}, err
		}
		return backend{client: c, expirer: c, close: noop}, nil

	case "redis":
		rdb, err := dedup.ConnectRedis(dc.RedisURL)
		if err != nil {
			return backend{}, err
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return backend{}, fmt.Errorf("ping redis: %w", err)
		}
		return backend{client: dedup.NewRedisClient(rdb), close: noop}, nil

	case "postgres":
		pool, err := database.NewPool(ctx, dc.DatabaseURL, database.PoolOptions{
			MaxConns: dc.MaxConns,
			NewRelic: traceNR && cfg.Observability.NewRelic.TraceDatabase,
			Logger:   log.With().Str("component", "pgx").Logger(),
		})
		if err != nil {
			return backend{}, err
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return backend{}, fmt.Errorf("migrate: %w", err)
		}
		repo := repository.NewClaimRepository(pool)
		return backend{client: repo, expirer: repo, close: pool.Close}, nil

	case "dynamodb":
		c, err := dedup.NewDynamoClient(ctx, dedup.DynamoConfig{
			Table:     dc.Table,
			Region:    dc.Region,
			Endpoint:  dc.Endpoint,
			AccessKey: dc.AccessKey,
			SecretKey: dc.SecretKey,
		})
		if err != nil {
			return backend{}, err
		}
		return backend{client: c, close: noop}, nil
	}
	return backend{}, fmt.Errorf("unknown backend %q", dc.Backend)
}
