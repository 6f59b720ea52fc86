package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/phrazzld/pushtasks/internal/api/shared"
	"github.com/phrazzld/pushtasks/internal/authn"
	"github.com/phrazzld/pushtasks/internal/backend"
	"github.com/phrazzld/pushtasks/internal/platform/logger"
	"github.com/phrazzld/pushtasks/internal/task"
	"github.com/phrazzld/pushtasks/internal/worker"
)

// Headers set by Cloud Tasks on every push request.
const (
	HeaderTaskName       = "X-CloudTasks-TaskName"
	HeaderTaskRetryCount = "X-CloudTasks-TaskRetryCount"
	HeaderQueueName      = "X-CloudTasks-QueueName"
)

// MaxBodyBytes caps the dispatch request body.
const MaxBodyBytes int64 = 1 << 20

const tracerName = "github.com/phrazzld/pushtasks/internal/api"

// DispatchRequest is the body a push queue delivers.
type DispatchRequest struct {
	TaskPath string                     `json:"task_path" validate:"required"`
	Args     []json.RawMessage          `json:"args" validate:"required"`
	Kwargs   map[string]json.RawMessage `json:"kwargs" validate:"required"`
}

// TaskHandler is the dispatch endpoint a push queue calls to execute a task.
type TaskHandler struct {
	backends    *backend.Backends
	backendName string
	registry    *task.Registry
	executor    *worker.Executor
	logger      *slog.Logger
	tracer      trace.Tracer
}

// HandlerOption customizes a TaskHandler.
type HandlerOption func(*TaskHandler)

// WithBackendName pins the handler to the backend with the given alias.
// Without it the first push backend is used.
func WithBackendName(alias string) HandlerOption {
	return func(h *TaskHandler) { h.backendName = alias }
}

// WithTracerProvider sets the provider used for dispatch spans.
func WithTracerProvider(tp trace.TracerProvider) HandlerOption {
	return func(h *TaskHandler) { h.tracer = tp.Tracer(tracerName) }
}

// NewTaskHandler creates a dispatch handler.
func NewTaskHandler(
	backends *backend.Backends,
	registry *task.Registry,
	executor *worker.Executor,
	logger *slog.Logger,
	opts ...HandlerOption,
) *TaskHandler {
	h := &TaskHandler{
		backends: backends,
		registry: registry,
		executor: executor,
		logger:   logger.With("component", "task_handler"),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP runs Dispatch and writes the response the push queue expects:
// 200 {"success": true} when the task succeeded and 400 {"success": false}
// when it failed, so the queue retries it. Rejected requests get 401; every
// other raised error is mapped with MapErrorToStatusCode.
func (h *TaskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		shared.RespondWithErrorAndLog(w, r, http.StatusMethodNotAllowed, "Method not allowed", nil)
		return
	}

	result, err := h.Dispatch(r)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			shared.RespondWithDispatchResult(w, r, http.StatusUnauthorized, false)
			return
		}

		var opts []shared.ResponseOption
		if errors.Is(err, ErrSuspiciousTask) {
			opts = append(opts, shared.WithElevatedLogLevel())
		}
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err, opts...)
		return
	}

	if result.Status() == task.StatusFailed {
		shared.RespondWithDispatchResult(w, r, http.StatusBadRequest, false)
		return
	}
	shared.RespondWithDispatchResult(w, r, http.StatusOK, true)
}

// Dispatch authenticates r, decodes and validates its body, resolves the task
// and executes it. Task failures are recorded on the returned result; the
// error reports requests that were rejected before execution began.
//
// Authentication happens before the body is read.
func (h *TaskHandler) Dispatch(r *http.Request) (*task.Result, error) {
	ctx, span := h.tracer.Start(r.Context(), "dispatch")
	defer span.End()

	log := h.logger
	if traceID := shared.GetTraceID(ctx); traceID != "" {
		log = log.With(slog.String("trace_id", traceID))
	}
	ctx = logger.WithLogger(ctx, log)

	fail := func(err error) (*task.Result, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, GetSafeErrorMessage(err))
		return nil, err
	}

	pushBackend, err := h.backends.PushBackend(h.backendName)
	if err != nil {
		return fail(err)
	}
	span.SetAttributes(attribute.String("task.backend", pushBackend.Alias()))

	authenticator, err := pushBackend.Authenticator()
	if err != nil {
		return fail(err)
	}
	identity := authenticator.Authenticate(r.WithContext(ctx))
	if identity == nil {
		log.Info("dispatch request rejected by authenticator",
			slog.String("backend", pushBackend.Alias()),
			slog.String("remote_addr", r.RemoteAddr))
		return fail(ErrUnauthenticated)
	}
	ctx = authn.WithIdentity(ctx, identity)

	var req DispatchRequest
	if err := shared.DecodeStrictJSON(r, MaxBodyBytes, &req); err != nil {
		switch {
		case errors.Is(err, shared.ErrBodyTooLarge):
			return fail(fmt.Errorf("%w: %v", ErrBodyTooLarge, err))
		case errors.Is(err, shared.ErrUnexpectedShape):
			return fail(fmt.Errorf("%w: %v", ErrInvalidEnvelope, err))
		default:
			return fail(fmt.Errorf("%w: %v", ErrMalformedBody, err))
		}
	}
	if err := shared.ValidateRequest(&req); err != nil {
		return fail(fmt.Errorf("%w: %s", ErrInvalidEnvelope, SanitizeValidationError(err)))
	}

	t, err := h.registry.Resolve(req.TaskPath)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrSuspiciousTask, err))
	}

	id := r.Header.Get(HeaderTaskName)
	if id == "" {
		id = task.NewResultID()
	}
	retryCount, err := parseRetryCount(r.Header.Get(HeaderTaskRetryCount))
	if err != nil {
		return fail(err)
	}
	queueHeader := r.Header.Get(HeaderQueueName)

	span.SetAttributes(
		attribute.String("task.name", t.Name),
		attribute.String("task.result_id", id),
		attribute.Int("task.retry_count", retryCount),
		attribute.String("cloudtasks.queue", queueHeader),
	)
	log.Debug("dispatching task",
		slog.String("task_name", t.Name),
		slog.String("result_id", id),
		slog.Int("retry_count", retryCount),
		slog.String("queue_header", queueHeader))

	args := task.Arguments{Args: req.Args, Kwargs: req.Kwargs}
	result := task.NewRunningResult(id, t, t.Backend, args, retryCount,
		h.executor.Now(), h.executor.WorkerID())

	if err := h.executor.Execute(ctx, t, result); err != nil {
		return fail(err)
	}
	span.SetAttributes(attribute.String("task.status", string(result.Status())))
	return result, nil
}

func parseRetryCount(header string) (int, error) {
	if header == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(header)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidEnvelope, HeaderTaskRetryCount)
	}
	return n, nil
}
