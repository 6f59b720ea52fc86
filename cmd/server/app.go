package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/phrazzld/pushtasks/internal/bootstrap"
	"github.com/phrazzld/pushtasks/internal/config"
	"github.com/phrazzld/pushtasks/internal/platform/tracing"
)

const tracingShutdownTimeout = 5 * time.Second

// application holds the server's dependencies and releases them on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	components      *bootstrap.Components
	tracerProvider  trace.TracerProvider
	shutdownTracing tracing.ShutdownFunc
}

// newApplication builds the application's components.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	tp trace.TracerProvider,
	shutdownTracing tracing.ShutdownFunc,
) (*application, error) {
	components, err := bootstrap.Build(ctx, cfg, logger, tp)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	if _, err := components.Backends.PushBackend(cfg.Tasks.DispatchBackend); err != nil {
		// The dispatch endpoint answers 500 until this is fixed.
		logger.Warn("dispatch endpoint has no usable push backend", slog.Any("error", err))
	}

	logger.Info("application initialized successfully")
	return &application{
		config:          cfg,
		logger:          logger,
		components:      components,
		tracerProvider:  tp,
		shutdownTracing: shutdownTracing,
	}, nil
}

// Run serves HTTP until ctx is canceled or the process is signaled.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	app.components.Close()

	if app.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), tracingShutdownTimeout)
		defer cancel()
		if err := app.shutdownTracing(ctx); err != nil {
			app.logger.Error("error shutting down tracing", slog.Any("error", err))
		}
	}

	app.logger.Info("application shutdown completed")
}
