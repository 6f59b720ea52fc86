// Package bootstrap wires the components shared by the server and the
// enqueue CLI from a loaded configuration.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/phrazzld/pushtasks/internal/backend"
	"github.com/phrazzld/pushtasks/internal/backend/setup"
	"github.com/phrazzld/pushtasks/internal/config"
	"github.com/phrazzld/pushtasks/internal/events"
	"github.com/phrazzld/pushtasks/internal/example"
	"github.com/phrazzld/pushtasks/internal/platform/postgres"
	"github.com/phrazzld/pushtasks/internal/platform/redis"
	"github.com/phrazzld/pushtasks/internal/task"
	"github.com/phrazzld/pushtasks/internal/worker"
)

// Components holds the long-lived dependencies built from the configuration.
type Components struct {
	Config *config.Config
	Logger *slog.Logger

	// DB is nil when no database is configured.
	DB *sql.DB

	// Redis is nil when no result cache is configured.
	Redis *goredis.Client

	Emitter  *events.InMemoryEventEmitter
	Registry *task.Registry
	Executor *worker.Executor
	Backends *backend.Backends
}

// Build creates the components. On error everything opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, tp trace.TracerProvider) (*Components, error) {
	c := &Components{
		Config:  cfg,
		Logger:  logger,
		Emitter: events.NewInMemoryEventEmitter(logger),
	}

	if err := c.setupStorage(ctx); err != nil {
		c.Close()
		return nil, err
	}

	c.Executor = worker.NewExecutor(c.Emitter, logger, worker.WithTracerProvider(tp))

	backends, err := setup.Backends(cfg.Tasks.Backends, setup.Deps{
		Emitter:        c.Emitter,
		Executor:       c.Executor,
		Logger:         logger,
		TracerProvider: tp,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to configure task backends: %w", err)
	}
	c.Backends = backends

	c.Registry = task.NewRegistry()
	if err := example.Register(c.Registry); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to register tasks: %w", err)
	}

	logger.Info("components initialized",
		slog.Bool("database", c.DB != nil),
		slog.Bool("result_cache", c.Redis != nil),
		slog.Int("backends", len(backends.All())),
		slog.Any("tasks", c.Registry.Names()))
	return c, nil
}

// setupStorage connects the optional result stores and subscribes them to
// task events.
func (c *Components) setupStorage(ctx context.Context) error {
	if url := c.Config.Database.URL; url != "" {
		db, err := postgres.Open(ctx, url, c.Logger)
		if err != nil {
			return err
		}
		c.DB = db

		if err := postgres.Migrate(ctx, db, c.Logger); err != nil {
			return err
		}
		c.Emitter.RegisterHandler(postgres.NewResultStore(db, c.Logger))
	}

	if addr := c.Config.Redis.Addr; addr != "" {
		c.Redis = redis.NewClient(addr)
		cache := redis.NewResultCache(c.Redis, c.Config.Redis.ResultTTL, c.Logger)
		if err := cache.Ping(ctx); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		c.Emitter.RegisterHandler(cache)
	}
	return nil
}

// Close releases backend clients and storage connections. Errors are logged.
func (c *Components) Close() {
	if c.Backends != nil {
		for _, b := range c.Backends.All() {
			if closer, ok := b.(io.Closer); ok {
				if err := closer.Close(); err != nil {
					c.Logger.Error("error closing task backend",
						slog.String("backend", b.Alias()), slog.Any("error", err))
				}
			}
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Error("error closing redis client", slog.Any("error", err))
		}
	}

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.Logger.Error("error closing database connection", slog.Any("error", err))
		}
	}
}
