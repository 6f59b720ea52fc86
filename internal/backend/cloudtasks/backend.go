// Package cloudtasks implements a task backend that submits tasks to Google
// Cloud Tasks as HTTP push requests aimed at the dispatch endpoint.
package cloudtasks

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/phrazzld/pushtasks/internal/authn"
	"github.com/phrazzld/pushtasks/internal/backend"
	"github.com/phrazzld/pushtasks/internal/config"
	"github.com/phrazzld/pushtasks/internal/events"
	"github.com/phrazzld/pushtasks/internal/platform/logger"
	"github.com/phrazzld/pushtasks/internal/redact"
	"github.com/phrazzld/pushtasks/internal/store"
	"github.com/phrazzld/pushtasks/internal/task"
)

// Kind is the configuration kind of this backend.
const Kind = "cloudtasks"

const tracerName = "github.com/phrazzld/pushtasks/internal/backend/cloudtasks"

// Backend enqueues tasks on Cloud Tasks queues.
type Backend struct {
	alias     string
	opts      Options
	emitter   events.Emitter
	logger    *slog.Logger
	now       func() time.Time
	tracer    trace.Tracer
	newClient func(ctx context.Context, opts ...option.ClientOption) (Client, error)

	authOnce sync.Once
	auth     authn.Authenticator
	authErr  error

	clientMu sync.Mutex
	client   Client
}

var _ backend.Backend = (*Backend)(nil)

// Option customizes a Backend.
type Option func(*Backend)

// WithEmitter sets the emitter receiving task_enqueued events.
func WithEmitter(e events.Emitter) Option {
	return func(b *Backend) {
		if e != nil {
			b.emitter = e
		}
	}
}

// WithLogger sets the backend logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithClient installs a ready-made queue client, skipping credential lookup.
func WithClient(c Client) Option {
	return func(b *Backend) { b.client = c }
}

// WithClock overrides the time source used for schedule and enqueue times.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// WithTracerProvider sets the provider used for enqueue spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(b *Backend) { b.tracer = tp.Tracer(tracerName) }
}

// New creates a backend. No configuration is checked until it is needed.
func New(alias string, opts Options, options ...Option) *Backend {
	b := &Backend{
		alias:     alias,
		opts:      opts,
		emitter:   events.NopEmitter{},
		logger:    slog.Default(),
		now:       time.Now,
		tracer:    otel.Tracer(tracerName),
		newClient: newAPIClient,
	}
	for _, o := range options {
		o(b)
	}
	b.logger = b.logger.With("component", "cloudtasks_backend", "backend", alias)
	return b
}

// Alias implements backend.Backend.
func (b *Backend) Alias() string {
	return b.alias
}

// Options returns the backend configuration.
func (b *Backend) Options() Options {
	return b.opts
}

// ProjectID returns the configured Google Cloud project.
func (b *Backend) ProjectID() (string, error) {
	if b.opts.ProjectID == "" {
		return "", fmt.Errorf("%w: backend %q: project_id must be specified", config.ErrImproperlyConfigured, b.alias)
	}
	return b.opts.ProjectID, nil
}

// Location returns the configured Cloud Tasks location.
func (b *Backend) Location() (string, error) {
	if b.opts.Location == "" {
		return "", fmt.Errorf("%w: backend %q: location must be specified", config.ErrImproperlyConfigured, b.alias)
	}
	return b.opts.Location, nil
}

// DefaultTarget returns the dispatch endpoint URL tasks are pushed to.
func (b *Backend) DefaultTarget() (string, error) {
	if b.opts.DefaultTarget == "" {
		return "", fmt.Errorf("%w: backend %q: default_target must be specified",
			config.ErrImproperlyConfigured, b.alias)
	}
	return b.opts.DefaultTarget, nil
}

// Authenticator returns the authenticator guarding the dispatch endpoint.
// It is built once, on first use.
func (b *Backend) Authenticator() (authn.Authenticator, error) {
	b.authOnce.Do(func() {
		b.auth, b.authErr = authn.New(b.opts.ViewAuthn, b.opts.ViewAuthnParams, b.logger)
		if b.authErr != nil {
			b.authErr = fmt.Errorf("backend %q: %w", b.alias, b.authErr)
		}
	})
	return b.auth, b.authErr
}

// QueuePath returns the fully qualified name of queue.
func (b *Backend) QueuePath(queue string) (string, error) {
	project, err := b.ProjectID()
	if err != nil {
		return "", err
	}
	location, err := b.Location()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("projects/%s/locations/%s/queues/%s", project, location, queue), nil
}

// TaskPath returns the fully qualified name of task id on queue.
func (b *Backend) TaskPath(queue, id string) (string, error) {
	parent, err := b.QueuePath(queue)
	if err != nil {
		return "", err
	}
	return parent + "/tasks/" + id, nil
}

// ValidateTask checks that t can be enqueued by this backend.
func (b *Backend) ValidateTask(t *task.Task) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %w", config.ErrImproperlyConfigured, err)
	}
	if len(b.opts.Queues) > 0 && !slices.Contains(b.opts.Queues, t.QueueName) {
		return fmt.Errorf("%w: %w: queue %q is not configured for backend %q",
			config.ErrImproperlyConfigured, task.ErrInvalidTask, t.QueueName, b.alias)
	}
	return nil
}

// Enqueue implements backend.Backend. With EnqueueOnCommit set, submission
// waits for the transaction carried by ctx to commit and the returned result
// stays READY until then.
func (b *Backend) Enqueue(
	ctx context.Context,
	t *task.Task,
	args []any,
	kwargs map[string]any,
) (*task.Result, error) {
	ctx, span := b.tracer.Start(ctx, "cloudtasks.enqueue", trace.WithAttributes(
		attribute.String("task.backend", b.alias),
	))
	defer span.End()

	result, submit, err := b.prepare(t, args, kwargs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid enqueue request")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("task.name", t.Name),
		attribute.String("task.queue", t.QueueName),
		attribute.String("task.result_id", result.ID()),
		attribute.Bool("task.enqueue_on_commit", b.opts.EnqueueOnCommit),
	)

	if b.opts.EnqueueOnCommit {
		if _, inTx := store.TxFromContext(ctx); inTx {
			logger.FromContext(ctx).Debug("deferring enqueue until commit",
				slog.String("task_name", t.Name),
				slog.String("result_id", result.ID()))
		}
		if err := store.OnCommit(ctx, submit); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "enqueue failed")
			return nil, err
		}
		return result, nil
	}

	if err := submit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "enqueue failed")
		return nil, err
	}
	return result, nil
}

// prepare validates t and builds the result and the submission step.
// Every configuration error surfaces here, before anything is deferred.
func (b *Backend) prepare(
	t *task.Task,
	args []any,
	kwargs map[string]any,
) (*task.Result, store.HookFn, error) {
	if err := b.ValidateTask(t); err != nil {
		return nil, nil, err
	}

	arguments, err := task.NewArguments(args, kwargs)
	if err != nil {
		return nil, nil, err
	}

	result := task.NewResult(task.NewResultID(), t, b.alias, arguments)

	body, err := task.NewPayload(t, arguments).Encode()
	if err != nil {
		return nil, nil, err
	}

	target, err := b.DefaultTarget()
	if err != nil {
		return nil, nil, err
	}
	parent, err := b.QueuePath(t.QueueName)
	if err != nil {
		return nil, nil, err
	}
	name, err := b.TaskPath(t.QueueName, result.ID())
	if err != nil {
		return nil, nil, err
	}

	httpRequest := &cloudtaskspb.HttpRequest{
		HttpMethod: cloudtaskspb.HttpMethod_POST,
		Url:        target,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
	if b.opts.OIDCServiceAccountEmail != "" {
		httpRequest.AuthorizationHeader = &cloudtaskspb.HttpRequest_OidcToken{
			OidcToken: &cloudtaskspb.OidcToken{
				ServiceAccountEmail: b.opts.OIDCServiceAccountEmail,
				Audience:            b.opts.OIDCAudience,
			},
		}
	}

	runAfter := t.RunAfter
	submit := func(ctx context.Context) error {
		return b.submit(ctx, result, &cloudtaskspb.CreateTaskRequest{
			Parent: parent,
			Task: &cloudtaskspb.Task{
				Name: name,
				MessageType: &cloudtaskspb.Task_HttpRequest{
					HttpRequest: httpRequest,
				},
			},
		}, runAfter)
	}
	return result, submit, nil
}

// submit sends req and records the enqueue on result. The schedule time is
// resolved here, at submission.
func (b *Backend) submit(
	ctx context.Context,
	result *task.Result,
	req *cloudtaskspb.CreateTaskRequest,
	runAfter task.RunAfter,
) error {
	ctx, span := b.tracer.Start(ctx, "cloudtasks.create_task", trace.WithAttributes(
		attribute.String("cloudtasks.task_name", req.GetTask().GetName()),
	))
	defer span.End()

	log := logger.FromContext(ctx).With(
		slog.String("backend", b.alias),
		slog.String("task_name", result.TaskName()),
		slog.String("result_id", result.ID()),
	)

	if !runAfter.IsZero() {
		req.Task.ScheduleTime = timestamppb.New(runAfter.Resolve(b.now()))
	}

	client, err := b.Client(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if _, err := client.CreateTask(ctx, req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create task failed")
		log.Error("failed to create cloud task", redact.ErrorAttr(err))
		return fmt.Errorf("failed to create cloud task %s: %w", req.GetTask().GetName(), err)
	}

	if err := result.MarkEnqueued(b.now()); err != nil {
		return err
	}
	log.Info("task enqueued", slog.String("queue", result.QueueName()))

	events.Publish(ctx, b.emitter, b.logger, events.NewEvent(events.TaskEnqueued, b.alias, result))
	return nil
}
