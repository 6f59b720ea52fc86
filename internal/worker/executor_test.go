package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/phrazzld/pushtasks/internal/authn"
	"github.com/phrazzld/pushtasks/internal/events"
	"github.com/phrazzld/pushtasks/internal/task"
)

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type recorder struct {
	types    []events.Type
	statuses []task.Status
}

func (r *recorder) HandleEvent(_ context.Context, e *events.Event) error {
	r.types = append(r.types, e.Type)
	r.statuses = append(r.statuses, e.Result.Status())
	return nil
}

func newTestExecutor(t *testing.T, opts ...Option) (*Executor, *recorder) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	emitter := events.NewInMemoryEventEmitter(logger)
	rec := &recorder{}
	emitter.RegisterHandler(rec)

	opts = append([]Option{WithClock(func() time.Time { return fixedNow }), WithWorkerID("worker-1")}, opts...)
	return NewExecutor(emitter, logger, opts...), rec
}

func runningResult(t *testing.T, def *task.Task, args []any, kwargs map[string]any) *task.Result {
	t.Helper()
	a, err := task.NewArguments(args, kwargs)
	require.NoError(t, err)
	return task.NewRunningResult("abc", def, def.Backend, a, 0, fixedNow, "worker-1")
}

func TestExecutor_Success(t *testing.T) {
	exec, rec := newTestExecutor(t)

	var gotA, gotB int
	def := task.New("tests.add", func(_ context.Context, args task.Arguments) (any, error) {
		if err := args.Arg(0, &gotA); err != nil {
			return nil, err
		}
		if _, err := args.Kwarg("b", &gotB); err != nil {
			return nil, err
		}
		return gotA + gotB, nil
	})
	r := runningResult(t, def, []any{1}, map[string]any{"b": 2})

	require.NoError(t, exec.Execute(context.Background(), def, r))

	assert.Equal(t, 1, gotA)
	assert.Equal(t, 2, gotB)
	assert.Equal(t, task.StatusSuccessful, r.Status())
	value, ok := r.ReturnValue()
	require.True(t, ok)
	assert.Equal(t, 3, value)
	assert.Equal(t, fixedNow, r.FinishedAt())
	assert.Empty(t, r.Errors())
	assert.Equal(t, []events.Type{events.TaskStarted, events.TaskFinished}, rec.types)
	assert.Equal(t, []task.Status{task.StatusRunning, task.StatusSuccessful}, rec.statuses)
}

func TestExecutor_Failure(t *testing.T) {
	exec, rec := newTestExecutor(t)

	def := task.New("tests.fail", func(context.Context, task.Arguments) (any, error) {
		return nil, errors.New("smtp unavailable")
	})
	r := runningResult(t, def, nil, nil)

	require.NoError(t, exec.Execute(context.Background(), def, r))

	assert.Equal(t, task.StatusFailed, r.Status())
	_, ok := r.ReturnValue()
	assert.False(t, ok)
	require.Len(t, r.Errors(), 1)
	assert.Equal(t, "errors.errorString", r.Errors()[0].ExceptionType)
	assert.Contains(t, r.Errors()[0].Traceback, "smtp unavailable")
	assert.Equal(t, fixedNow, r.FinishedAt())
	assert.Equal(t, []events.Type{events.TaskStarted, events.TaskFinished}, rec.types)
	assert.Equal(t, []task.Status{task.StatusRunning, task.StatusFailed}, rec.statuses)
}

func TestExecutor_Panic(t *testing.T) {
	exec, rec := newTestExecutor(t)

	def := task.New("tests.panic", func(context.Context, task.Arguments) (any, error) {
		panic("nil map write")
	})
	r := runningResult(t, def, nil, nil)

	require.NoError(t, exec.Execute(context.Background(), def, r))

	assert.Equal(t, task.StatusFailed, r.Status())
	require.Len(t, r.Errors(), 1)
	assert.Contains(t, r.Errors()[0].ExceptionType, "PanicError")
	assert.Contains(t, r.Errors()[0].Traceback, "nil map write")
	assert.Len(t, rec.types, 2)
}

func TestExecutor_PassesContextToContextTasks(t *testing.T) {
	exec, _ := newTestExecutor(t)

	var attempt int
	def := task.NewWithContext("tests.ctx", func(_ context.Context, tc *task.Context, _ task.Arguments) (any, error) {
		attempt = tc.Attempt()
		return tc.Result.ID(), nil
	})
	a, err := task.NewArguments(nil, nil)
	require.NoError(t, err)
	r := task.NewRunningResult("abc", def, def.Backend, a, 2, fixedNow, "worker-1")

	require.NoError(t, exec.Execute(context.Background(), def, r))

	assert.Equal(t, 3, attempt)
	value, _ := r.ReturnValue()
	assert.Equal(t, "abc", value)
}

func TestExecutor_StartsReadyResult(t *testing.T) {
	exec, _ := newTestExecutor(t)

	def := task.New("tests.noop", func(context.Context, task.Arguments) (any, error) { return nil, nil })
	a, err := task.NewArguments(nil, nil)
	require.NoError(t, err)
	r := task.NewResult("abc", def, def.Backend, a)

	require.NoError(t, exec.Execute(context.Background(), def, r))

	assert.Equal(t, task.StatusSuccessful, r.Status())
	assert.Equal(t, fixedNow, r.StartedAt())
	assert.Equal(t, []string{"worker-1"}, r.WorkerIDs())
}

func TestExecutor_RejectsFinishedResult(t *testing.T) {
	exec, rec := newTestExecutor(t)

	def := task.New("tests.noop", func(context.Context, task.Arguments) (any, error) { return nil, nil })
	r := runningResult(t, def, nil, nil)
	require.NoError(t, exec.Execute(context.Background(), def, r))

	err := exec.Execute(context.Background(), def, r)

	assert.ErrorIs(t, err, task.ErrInvalidTransition)
	assert.Len(t, rec.types, 2)
}

func TestExecutor_RecordsSpan(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	exec, _ := newTestExecutor(t, WithTracerProvider(tp))

	def := task.New("tests.fail", func(context.Context, task.Arguments) (any, error) {
		return nil, errors.New("boom")
	})
	require.NoError(t, exec.Execute(context.Background(), def, runningResult(t, def, nil, nil)))

	ended := spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "task.execute", ended[0].Name())
	assert.Equal(t, "Error", ended[0].Status().Code.String())
}

func TestExecutor_LogsAuthenticatedCaller(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	exec := NewExecutor(nil, logger, WithClock(func() time.Time { return fixedNow }), WithWorkerID("worker-1"))

	def := task.New("tests.noop", func(context.Context, task.Arguments) (any, error) { return nil, nil })
	identity := &authn.Identity{
		Subject: "123",
		Email:   "tasks@example.com",
		Claims:  map[string]any{"email": "tasks@example.com", "secret": "do-not-log"},
	}
	ctx := authn.WithIdentity(context.Background(), identity)

	require.NoError(t, exec.Execute(ctx, def, runningResult(t, def, nil, nil)))

	assert.Contains(t, buf.String(), `"caller":"tasks@example.com"`)
	assert.NotContains(t, buf.String(), "do-not-log")
}

func TestNewExecutor_DefaultsWorkerIDToHostname(t *testing.T) {
	exec := NewExecutor(nil, nil)
	assert.NotEmpty(t, exec.WorkerID())
}
