package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/phrazzld/pushtasks/internal/api"
	apiMiddleware "github.com/phrazzld/pushtasks/internal/api/middleware"
)

// setupRouter creates the router with the health check and dispatch routes.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware(app.logger))

	taskHandler := api.NewTaskHandler(
		app.components.Backends,
		app.components.Registry,
		app.components.Executor,
		app.logger,
		api.WithBackendName(app.config.Tasks.DispatchBackend),
		api.WithTracerProvider(app.tracerProvider),
	)
	r.Post(app.config.Tasks.DispatchPath, taskHandler.ServeHTTP)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	// The OpenTelemetry handler wraps the router so the trace middleware
	// sees the server span.
	return otelhttp.NewHandler(r, "pushtasks",
		otelhttp.WithTracerProvider(app.tracerProvider))
}
