// Package worker runs task bodies and drives their results to a terminal state.
package worker

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/phrazzld/pushtasks/internal/authn"
	"github.com/phrazzld/pushtasks/internal/events"
	"github.com/phrazzld/pushtasks/internal/redact"
	"github.com/phrazzld/pushtasks/internal/task"
)

const tracerName = "github.com/phrazzld/pushtasks/internal/worker"

// Executor runs one task attempt at a time per call. It holds no per-call
// state and is safe for concurrent use.
type Executor struct {
	emitter  events.Emitter
	logger   *slog.Logger
	now      func() time.Time
	workerID string
	tracer   trace.Tracer
}

// Option customizes an Executor.
type Option func(*Executor)

// WithClock overrides the time source used for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithWorkerID overrides the worker id recorded on results.
func WithWorkerID(id string) Option {
	return func(e *Executor) { e.workerID = id }
}

// WithTracerProvider sets the provider used for execution spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Executor) { e.tracer = tp.Tracer(tracerName) }
}

// NewExecutor creates an executor publishing lifecycle events to emitter.
// The worker id defaults to the host name.
func NewExecutor(emitter events.Emitter, logger *slog.Logger, opts ...Option) *Executor {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Executor{
		emitter: emitter,
		logger:  logger.With("component", "task_executor"),
		now:     time.Now,
		tracer:  otel.Tracer(tracerName),
	}
	if host, err := os.Hostname(); err == nil {
		e.workerID = host
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WorkerID returns the id recorded on results this executor runs.
func (e *Executor) WorkerID() string {
	return e.workerID
}

// Now returns the executor's current time.
func (e *Executor) Now() time.Time {
	return e.now()
}

// Execute runs t for r and records the outcome on r. A result that is not yet
// RUNNING is started first. Task failures are recorded on r, not returned;
// the returned error only reports a result that cannot be run.
//
// Lifecycle events are published in order: task_started, then task_finished.
func (e *Executor) Execute(ctx context.Context, t *task.Task, r *task.Result) error {
	if r.Status() != task.StatusRunning {
		if err := r.MarkRunning(e.now(), e.workerID); err != nil {
			return err
		}
	}

	ctx, span := e.tracer.Start(ctx, "task.execute", trace.WithAttributes(
		attribute.String("task.name", t.Name),
		attribute.String("task.queue", r.QueueName()),
		attribute.String("task.result_id", r.ID()),
		attribute.Int("task.attempt", r.Attempts()),
	))
	defer span.End()

	log := e.logger.With(
		slog.String("task_name", t.Name),
		slog.String("result_id", r.ID()),
		slog.Int("attempt", r.Attempts()),
	)
	if caller, ok := authn.IdentityFromContext(ctx); ok {
		log = log.With(slog.Any("caller", caller))
	}

	events.Publish(ctx, e.emitter, log, events.NewEvent(events.TaskStarted, r.Backend(), r))

	value, err := t.Call(ctx, r)
	if err != nil {
		taskErr := task.CaptureError(err)
		if markErr := r.MarkFailed(taskErr, e.now()); markErr != nil {
			return markErr
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, taskErr.ExceptionType)
		log.Warn("task failed",
			slog.String("exception_type", taskErr.ExceptionType),
			redact.ErrorAttr(err))
	} else {
		if markErr := r.MarkSucceeded(value, e.now()); markErr != nil {
			return markErr
		}
		log.Info("task succeeded")
	}
	span.SetAttributes(attribute.String("task.status", string(r.Status())))

	events.Publish(ctx, e.emitter, log, events.NewEvent(events.TaskFinished, r.Backend(), r))
	return nil
}
