// Package main implements the entry point of the pushtasks server, which
// receives tasks pushed by Cloud Tasks and executes them.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/phrazzld/pushtasks/internal/config"
	"github.com/phrazzld/pushtasks/internal/platform/logger"
	"github.com/phrazzld/pushtasks/internal/platform/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	ctx := context.Background()

	app, err := initializeApp(ctx, *configPath)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if err := app.Run(ctx); err != nil {
		app.logger.Error("server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

// initializeApp loads configuration, sets up logging and tracing, and builds
// the application.
func initializeApp(ctx context.Context, configPath string) (*application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	l := logger.Setup(cfg.Server)
	l.Info("server configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Server.LogLevel),
		slog.String("dispatch_path", cfg.Tasks.DispatchPath))

	tp, shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, l)
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}

	app, err := newApplication(ctx, cfg, l, tp, shutdownTracing)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, err
	}
	return app, nil
}
