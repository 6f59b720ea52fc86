// Package setup builds the configured task backends.
package setup

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cast"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/phrazzld/pushtasks/internal/backend"
	"github.com/phrazzld/pushtasks/internal/backend/cloudtasks"
	"github.com/phrazzld/pushtasks/internal/backend/immediate"
	"github.com/phrazzld/pushtasks/internal/config"
	"github.com/phrazzld/pushtasks/internal/events"
	"github.com/phrazzld/pushtasks/internal/worker"
)

// Deps are the shared collaborators handed to every backend.
type Deps struct {
	Emitter        events.Emitter
	Executor       *worker.Executor
	Logger         *slog.Logger
	TracerProvider trace.TracerProvider
}

// Backends builds one backend per entry of cfgs, in order. Kind-specific
// options are parsed here but validated by each backend at first use.
func Backends(cfgs []config.BackendConfig, deps Deps) (*backend.Backends, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.TracerProvider == nil {
		deps.TracerProvider = otel.GetTracerProvider()
	}

	built := make([]backend.Backend, 0, len(cfgs))
	for _, c := range cfgs {
		b, err := build(c, deps)
		if err != nil {
			return nil, err
		}
		deps.Logger.Info("task backend configured",
			slog.String("alias", c.Alias),
			slog.String("kind", c.Kind),
			slog.Any("queues", c.Queues))
		built = append(built, b)
	}
	return backend.New(built...)
}

func build(c config.BackendConfig, deps Deps) (backend.Backend, error) {
	switch c.Kind {
	case cloudtasks.Kind:
		return cloudtasks.New(c.Alias, cloudtasks.ParseOptions(c.Options, c.Queues),
			cloudtasks.WithEmitter(deps.Emitter),
			cloudtasks.WithLogger(deps.Logger),
			cloudtasks.WithTracerProvider(deps.TracerProvider),
		), nil
	case immediate.Kind:
		if deps.Executor == nil {
			return nil, fmt.Errorf("%w: backend %q needs an executor", config.ErrImproperlyConfigured, c.Alias)
		}
		return immediate.New(c.Alias, deps.Executor, deps.Emitter, deps.Logger,
			cast.ToBool(c.Options["enqueue_on_commit"])), nil
	default:
		return nil, fmt.Errorf("%w: backend %q has unknown kind %q",
			config.ErrImproperlyConfigured, c.Alias, c.Kind)
	}
}
