package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/pushtasks/internal/events"
	"github.com/phrazzld/pushtasks/internal/store"
	"github.com/phrazzld/pushtasks/internal/task"
)

func startMiniRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func newResult(t *testing.T) *task.Result {
	t.Helper()
	def := task.New("example.add", func(context.Context, task.Arguments) (any, error) { return nil, nil })
	args, err := task.NewArguments([]any{1}, map[string]any{"b": 2})
	require.NoError(t, err)
	return task.NewResult(task.NewResultID(), def, "default", args)
}

func TestResultCache_HandleEvent(t *testing.T) {
	s := startMiniRedis(t)
	client := NewClient(s.Addr())
	t.Cleanup(func() { _ = client.Close() })
	cache := NewResultCache(client, time.Hour, nil)
	ctx := context.Background()

	require.NoError(t, cache.Ping(ctx))

	result := newResult(t)
	now := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, result.MarkEnqueued(now))
	require.NoError(t, cache.HandleEvent(ctx, events.NewEvent(events.TaskEnqueued, "default", result)))

	assert.True(t, s.Exists(Key(result.ID())))
	assert.Equal(t, time.Hour, s.TTL(Key(result.ID())))

	got, err := cache.Get(ctx, result.ID())
	require.NoError(t, err)
	assert.Equal(t, task.StatusEnqueued, got.Status)
	assert.Equal(t, "example.add", got.TaskName)
	require.NotNil(t, got.EnqueuedAt)
	assert.True(t, now.Equal(*got.EnqueuedAt))

	require.NoError(t, result.MarkRunning(now.Add(time.Second), "worker-1"))
	require.NoError(t, result.MarkSucceeded(3, now.Add(2*time.Second)))
	require.NoError(t, cache.HandleEvent(ctx, events.NewEvent(events.TaskFinished, "default", result)))

	got, err = cache.Get(ctx, result.ID())
	require.NoError(t, err)
	assert.Equal(t, task.StatusSuccessful, got.Status)
	assert.Equal(t, []string{"worker-1"}, got.WorkerIDs)
	assert.Equal(t, float64(3), got.ReturnValue)
}

func TestResultCache_LateEnqueueDoesNotRegress(t *testing.T) {
	s := startMiniRedis(t)
	cache := NewResultCache(NewClient(s.Addr()), time.Hour, nil)
	ctx := context.Background()

	def := task.New("example.add", func(context.Context, task.Arguments) (any, error) { return nil, nil })
	args, err := task.NewArguments([]any{1}, nil)
	require.NoError(t, err)
	now := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)

	executed := task.NewRunningResult("same-id", def, "default", args, 0, now.Add(time.Second), "worker-1")
	require.NoError(t, executed.MarkSucceeded(3, now.Add(2*time.Second)))
	require.NoError(t, cache.HandleEvent(ctx, events.NewEvent(events.TaskFinished, "default", executed)))

	enqueued := task.NewResult("same-id", def, "default", args)
	require.NoError(t, enqueued.MarkEnqueued(now))
	require.NoError(t, cache.HandleEvent(ctx, events.NewEvent(events.TaskEnqueued, "default", enqueued)))

	got, err := cache.Get(ctx, "same-id")
	require.NoError(t, err)
	assert.Equal(t, task.StatusSuccessful, got.Status)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, now.Add(2*time.Second).Equal(*got.FinishedAt))
	assert.Equal(t, float64(3), got.ReturnValue)
	require.NotNil(t, got.EnqueuedAt, "enqueue time is still recorded")
	assert.True(t, now.Equal(*got.EnqueuedAt))

	retried := task.NewRunningResult("same-id", def, "default", args, 1, now.Add(time.Minute), "worker-2")
	require.NoError(t, cache.Put(ctx, retried.Snapshot()))

	got, err = cache.Get(ctx, "same-id")
	require.NoError(t, err)
	assert.Equal(t, task.StatusRunning, got.Status, "a redelivery starts a new attempt")
	assert.Equal(t, 1, got.RetryCount)
	assert.Nil(t, got.ReturnValue)
}

func TestResultCache_ReplacesUndecodableEntry(t *testing.T) {
	s := startMiniRedis(t)
	cache := NewResultCache(NewClient(s.Addr()), 0, nil)
	ctx := context.Background()

	result := newResult(t)
	require.NoError(t, s.Set(Key(result.ID()), "not json"))
	require.NoError(t, cache.Put(ctx, result.Snapshot()))

	got, err := cache.Get(ctx, result.ID())
	require.NoError(t, err)
	assert.Equal(t, task.StatusReady, got.Status)
}

func TestResultCache_Expiry(t *testing.T) {
	s := startMiniRedis(t)
	cache := NewResultCache(NewClient(s.Addr()), time.Minute, nil)
	ctx := context.Background()

	result := newResult(t)
	require.NoError(t, cache.Put(ctx, result.Snapshot()))

	s.FastForward(2 * time.Minute)

	_, err := cache.Get(ctx, result.ID())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestResultCache_UnserializableReturnValue(t *testing.T) {
	s := startMiniRedis(t)
	cache := NewResultCache(NewClient(s.Addr()), 0, nil)
	ctx := context.Background()

	snap := newResult(t).Snapshot()
	snap.Status = task.StatusSuccessful
	snap.ReturnValue = func() {}

	require.NoError(t, cache.Put(ctx, snap))

	got, err := cache.Get(ctx, snap.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ReturnValue)
	assert.Equal(t, time.Duration(0), s.TTL(Key(snap.ID)))
}

func TestResultCache_Errors(t *testing.T) {
	s := startMiniRedis(t)
	cache := NewResultCache(NewClient(s.Addr()), 0, nil)
	ctx := context.Background()

	_, err := cache.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Set(Key("garbage"), "not json"))
	_, err = cache.Get(ctx, "garbage")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrNotFound)

	assert.NoError(t, cache.HandleEvent(ctx, nil))

	dead, err := miniredis.Run()
	require.NoError(t, err)
	deadCache := NewResultCache(NewClient(dead.Addr()), 0, nil)
	dead.Close()
	assert.Error(t, deadCache.Put(ctx, newResult(t).Snapshot()))
}
