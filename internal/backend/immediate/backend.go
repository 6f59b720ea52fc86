// Package immediate implements a backend that runs tasks in-process as soon
// as they are enqueued. It is meant for local development and tests; there is
// no push queue, so the dispatch endpoint never serves it.
package immediate

import (
	"context"
	"log/slog"
	"time"

	"github.com/phrazzld/pushtasks/internal/backend"
	"github.com/phrazzld/pushtasks/internal/events"
	"github.com/phrazzld/pushtasks/internal/store"
	"github.com/phrazzld/pushtasks/internal/task"
	"github.com/phrazzld/pushtasks/internal/worker"
)

// Kind is the configuration kind of this backend.
const Kind = "immediate"

// Backend executes tasks synchronously through a worker.Executor.
type Backend struct {
	alias           string
	executor        *worker.Executor
	emitter         events.Emitter
	logger          *slog.Logger
	enqueueOnCommit bool
}

var _ backend.Backend = (*Backend)(nil)

// New creates an immediate backend. With enqueueOnCommit set, execution waits
// for the transaction carried by ctx to commit.
func New(
	alias string,
	executor *worker.Executor,
	emitter events.Emitter,
	logger *slog.Logger,
	enqueueOnCommit bool,
) *Backend {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		alias:           alias,
		executor:        executor,
		emitter:         emitter,
		logger:          logger.With("component", "immediate_backend", "backend", alias),
		enqueueOnCommit: enqueueOnCommit,
	}
}

// Alias implements backend.Backend.
func (b *Backend) Alias() string {
	return b.alias
}

// Enqueue implements backend.Backend. RunAfter is ignored. The task's own
// failure is recorded on the returned result, not returned as an error.
func (b *Backend) Enqueue(
	ctx context.Context,
	t *task.Task,
	args []any,
	kwargs map[string]any,
) (*task.Result, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	arguments, err := task.NewArguments(args, kwargs)
	if err != nil {
		return nil, err
	}

	result := task.NewResult(task.NewResultID(), t, b.alias, arguments)
	if !t.RunAfter.IsZero() {
		b.logger.Debug("ignoring run_after", slog.String("task_name", t.Name))
	}

	run := func(ctx context.Context) error {
		if err := result.MarkEnqueued(b.now()); err != nil {
			return err
		}
		events.Publish(ctx, b.emitter, b.logger, events.NewEvent(events.TaskEnqueued, b.alias, result))
		return b.executor.Execute(ctx, t, result)
	}

	if b.enqueueOnCommit {
		if err := store.OnCommit(ctx, run); err != nil {
			return result, err
		}
		return result, nil
	}
	if err := run(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

func (b *Backend) now() time.Time {
	return b.executor.Now()
}
