// Package bootstrap wires the process-level runtime shared by the commands.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"helpmatch/internal/cache"
	"helpmatch/internal/config"
	"helpmatch/internal/database"
	"helpmatch/internal/middleware"
	"helpmatch/internal/observability"
	"helpmatch/internal/seed"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedFixture is a YAML fixture loaded after the schema is applied.
	// Only honoured outside production.
	SeedFixture string
}

// Runtime holds the shared connections plus the tracer shutdown hook.
type Runtime struct {
	DB    *gorm.DB
	Redis *redis.Client

	shutdownTracing func(context.Context) error
}

// InitRuntime connects to DB and Redis, configures logging and tracing and
// optionally seeds a fixture.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	observability.SetLevel(cfg.LogLevel)

	shutdown, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:  "helpmatch-api",
		Environment:  cfg.Env,
		Exporter:     cfg.TracingExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplerRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing init failed: %w", err)
	}

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	// nil when unreachable; the API runs without caching and pub/sub
	rdb := cache.Connect(ctx, cfg.RedisURL)

	rt := &Runtime{DB: db, Redis: rdb, shutdownTracing: shutdown}

	if opts.SeedFixture != "" {
		if cfg.IsProduction() {
			middleware.Logger.Warn("ignoring seed fixture in production", slog.String("path", opts.SeedFixture))
			return rt, nil
		}
		if err := seedFixture(ctx, db, opts.SeedFixture); err != nil {
			rt.Close(ctx)
			return nil, err
		}
	}
	return rt, nil
}

// ShutdownTracing flushes pending spans. Connections are closed by their owner.
func (r *Runtime) ShutdownTracing(ctx context.Context) {
	if r.shutdownTracing == nil {
		return
	}
	if err := r.shutdownTracing(ctx); err != nil {
		middleware.Logger.Error("tracer shutdown failed", slog.String("error", err.Error()))
	}
}

// Close releases every resource the runtime opened.
func (r *Runtime) Close(ctx context.Context) {
	if r.Redis != nil {
		_ = r.Redis.Close()
	}
	if err := database.Close(r.DB); err != nil {
		middleware.Logger.Error("database close failed", slog.String("error", err.Error()))
	}
	r.ShutdownTracing(ctx)
}

func seedFixture(ctx context.Context, db *gorm.DB, path string) error {
	fx, err := seed.LoadFixtureFile(path)
	if err != nil {
		return err
	}
	res, err := seed.Seed(ctx, db, seed.Options{Fixture: fx})
	if err != nil {
		return fmt.Errorf("seed fixture: %w", err)
	}
	middleware.Logger.Info("fixture seeded",
		slog.String("path", path),
		slog.Int("users", res.Users),
		slog.Int("requests", res.Requests),
	)
	return nil
}
