// Package redis caches the latest task result snapshots in Redis so callers
// can look up the state of a result by id without a database round trip.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/phrazzld/pushtasks/internal/events"
	"github.com/phrazzld/pushtasks/internal/platform/logger"
	"github.com/phrazzld/pushtasks/internal/store"
	"github.com/phrazzld/pushtasks/internal/task"
)

const keyPrefix = "pushtasks:result:"

// maxPutAttempts bounds the optimistic-lock retries of Put.
const maxPutAttempts = 5

// NewClient creates a Redis client for addr.
func NewClient(addr string) *goredis.Client {
	return goredis.NewClient(&goredis.Options{Addr: addr})
}

// ResultCache stores result snapshots under pushtasks:result:<id>.
type ResultCache struct {
	client goredis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

var _ events.Handler = (*ResultCache)(nil)

// NewResultCache creates a cache whose entries expire after ttl.
// A zero ttl keeps entries until they are overwritten.
func NewResultCache(client goredis.UniversalClient, ttl time.Duration, logger *slog.Logger) *ResultCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultCache{client: client, ttl: ttl, logger: logger.With("component", "result_cache")}
}

// Key returns the cache key of the result with the given id.
func Key(id string) string {
	return keyPrefix + id
}

// HandleEvent caches the event's result.
func (c *ResultCache) HandleEvent(ctx context.Context, event *events.Event) error {
	if event == nil || event.Result == nil {
		return nil
	}
	return c.Put(ctx, event.Result.Snapshot())
}

// Put merges snap into the cached state of the same result. The write is a
// compare-and-set under WATCH: a snapshot older than the cached one, such as
// a task_enqueued event that arrives after the task finished, never moves the
// cached status backwards.
func (c *ResultCache) Put(ctx context.Context, snap task.Snapshot) error {
	key := Key(snap.ID)

	for attempt := 0; attempt < maxPutAttempts; attempt++ {
		err := c.client.Watch(ctx, func(tx *goredis.Tx) error {
			stored, ok, err := c.load(ctx, tx, key)
			if err != nil {
				return err
			}
			next := snap
			if ok {
				merged, changed := stored.Merge(snap)
				if !changed {
					logger.FromContext(ctx).Debug("ignoring stale task result",
						slog.String("result_id", snap.ID),
						slog.String("status", string(snap.Status)),
						slog.String("cached_status", string(stored.Status)))
					return nil
				}
				next = merged
			}

			data, err := c.encode(ctx, next)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.Set(ctx, key, data, c.ttl)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to cache task result %s: %w", snap.ID, err)
		}
		return nil
	}
	return fmt.Errorf("failed to cache task result %s: %w", snap.ID, goredis.TxFailedErr)
}

// load reads the cached snapshot at key inside a WATCH. An entry that cannot
// be decoded is treated as absent and gets replaced.
func (c *ResultCache) load(ctx context.Context, tx *goredis.Tx, key string) (task.Snapshot, bool, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return task.Snapshot{}, false, nil
	}
	if err != nil {
		return task.Snapshot{}, false, err
	}
	var stored task.Snapshot
	if err := json.Unmarshal(data, &stored); err != nil {
		c.logger.Warn("replacing undecodable cached task result",
			slog.String("key", key),
			slog.Any("error", err))
		return task.Snapshot{}, false, nil
	}
	return stored, true, nil
}

func (c *ResultCache) encode(ctx context.Context, snap task.Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err == nil {
		return data, nil
	}

	logger.FromContext(ctx).Warn("task return value is not JSON serializable; caching without it",
		slog.String("result_id", snap.ID),
		slog.String("task_name", snap.TaskName),
		slog.Any("error", err))
	snap.ReturnValue = nil
	if data, err = json.Marshal(snap); err != nil {
		return nil, fmt.Errorf("failed to encode task result %s: %w", snap.ID, err)
	}
	return data, nil
}

// Get returns the cached snapshot of the result with the given id. A miss
// returns store.ErrNotFound. The return value is decoded into generic JSON types.
func (c *ResultCache) Get(ctx context.Context, id string) (*task.Snapshot, error) {
	data, err := c.client.Get(ctx, Key(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%w: task result %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read task result %s: %w", id, err)
	}

	var snap task.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode task result %s: %w", id, err)
	}
	return &snap, nil
}

// Ping checks that Redis is reachable.
func (c *ResultCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
