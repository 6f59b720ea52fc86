package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/pushtasks/internal/events"
	"github.com/phrazzld/pushtasks/internal/platform/logger"
	"github.com/phrazzld/pushtasks/internal/store"
	"github.com/phrazzld/pushtasks/internal/task"
)

// ResultStore persists task result snapshots in the task_results table.
type ResultStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ events.Handler = (*ResultStore)(nil)

// NewResultStore creates a ResultStore backed by db.
func NewResultStore(db *sql.DB, logger *slog.Logger) *ResultStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultStore{db: db, logger: logger.With("component", "result_store")}
}

// HandleEvent saves the event's result. It is registered on the event emitter.
func (s *ResultStore) HandleEvent(ctx context.Context, event *events.Event) error {
	if event == nil || event.Result == nil {
		return nil
	}
	return s.Save(ctx, event.Result.Snapshot())
}

const upsertResultQuery = `
	INSERT INTO task_results (
		id, task_name, queue_name, backend, status, arguments, errors,
		worker_ids, retry_count, return_value,
		enqueued_at, started_at, last_attempted_at, finished_at, updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (id) DO UPDATE SET
		status = EXCLUDED.status,
		errors = EXCLUDED.errors,
		worker_ids = EXCLUDED.worker_ids,
		retry_count = EXCLUDED.retry_count,
		return_value = EXCLUDED.return_value,
		enqueued_at = COALESCE(EXCLUDED.enqueued_at, task_results.enqueued_at),
		started_at = COALESCE(EXCLUDED.started_at, task_results.started_at),
		last_attempted_at = COALESCE(EXCLUDED.last_attempted_at, task_results.last_attempted_at),
		finished_at = EXCLUDED.finished_at,
		updated_at = EXCLUDED.updated_at
	WHERE EXCLUDED.retry_count > task_results.retry_count
		OR (EXCLUDED.retry_count = task_results.retry_count
			AND task_status_rank(EXCLUDED.status) >= task_status_rank(task_results.status))
`

const backfillEnqueuedAtQuery = `
	UPDATE task_results
	SET enqueued_at = $2, updated_at = $3
	WHERE id = $1 AND enqueued_at IS NULL
`

// Save inserts snap or replaces the stored state of the result with the same
// id. The status of a stored result never moves backwards within an attempt:
// a stale snapshot, such as a task_enqueued event that arrives after the task
// finished, only fills in a missing enqueue time.
func (s *ResultStore) Save(ctx context.Context, snap task.Snapshot) error {
	log := logger.FromContext(ctx)

	row, err := newResultRow(snap)
	if err != nil {
		return err
	}
	if row.returnValueErr != nil {
		log.Warn("task return value is not JSON serializable; storing null",
			slog.String("result_id", snap.ID),
			slog.String("task_name", snap.TaskName),
			slog.Any("error", row.returnValueErr))
	}

	conn := store.Conn(ctx, s.db)
	now := time.Now().UTC()

	res, err := conn.ExecContext(ctx, upsertResultQuery,
		snap.ID,
		snap.TaskName,
		snap.QueueName,
		snap.Backend,
		string(snap.Status),
		row.arguments,
		row.errors,
		row.workerIDs,
		snap.RetryCount,
		row.returnValue,
		nullTime(snap.EnqueuedAt),
		nullTime(snap.StartedAt),
		nullTime(snap.LastAttemptedAt),
		nullTime(snap.FinishedAt),
		now,
	)
	if err != nil {
		log.Error("failed to save task result",
			slog.String("result_id", snap.ID),
			slog.String("status", string(snap.Status)),
			slog.Any("error", err))
		return fmt.Errorf("failed to save task result: %w", MapError(err))
	}

	applied, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save task result: %w", MapError(err))
	}
	if applied > 0 {
		return nil
	}

	log.Debug("ignoring stale task result",
		slog.String("result_id", snap.ID),
		slog.String("status", string(snap.Status)),
		slog.Int("retry_count", snap.RetryCount))
	if snap.EnqueuedAt == nil {
		return nil
	}
	if _, err := conn.ExecContext(ctx, backfillEnqueuedAtQuery, snap.ID, nullTime(snap.EnqueuedAt), now); err != nil {
		return fmt.Errorf("failed to save task result: %w", MapError(err))
	}
	return nil
}

const getResultQuery = `
	SELECT id, task_name, queue_name, backend, status, arguments, errors,
		worker_ids, retry_count, return_value,
		enqueued_at, started_at, last_attempted_at, finished_at
	FROM task_results
	WHERE id = $1
`

// Get loads the latest stored snapshot of the result with the given id.
// A missing id returns store.ErrNotFound.
func (s *ResultStore) Get(ctx context.Context, id string) (*task.Snapshot, error) {
	var (
		snap                                         task.Snapshot
		status                                       string
		arguments, errs, workerIDs, returnValue      []byte
		enqueuedAt, startedAt, lastAttempt, finished sql.NullTime
	)

	err := store.Conn(ctx, s.db).QueryRowContext(ctx, getResultQuery, id).Scan(
		&snap.ID, &snap.TaskName, &snap.QueueName, &snap.Backend, &status,
		&arguments, &errs, &workerIDs, &snap.RetryCount, &returnValue,
		&enqueuedAt, &startedAt, &lastAttempt, &finished,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get task result %s: %w", id, MapError(err))
	}

	snap.Status = task.Status(status)
	snap.Attempts = snap.RetryCount + 1
	snap.EnqueuedAt = timePtr(enqueuedAt)
	snap.StartedAt = timePtr(startedAt)
	snap.LastAttemptedAt = timePtr(lastAttempt)
	snap.FinishedAt = timePtr(finished)

	if err := json.Unmarshal(arguments, &snap.Args); err != nil {
		return nil, fmt.Errorf("failed to decode arguments of task result %s: %w", id, err)
	}
	if err := json.Unmarshal(errs, &snap.Errors); err != nil {
		return nil, fmt.Errorf("failed to decode errors of task result %s: %w", id, err)
	}
	if err := json.Unmarshal(workerIDs, &snap.WorkerIDs); err != nil {
		return nil, fmt.Errorf("failed to decode worker ids of task result %s: %w", id, err)
	}
	if len(returnValue) > 0 {
		snap.ReturnValue = json.RawMessage(returnValue)
	}
	return &snap, nil
}

// resultRow holds the JSON columns of a task_results row.
type resultRow struct {
	arguments      []byte
	errors         []byte
	workerIDs      []byte
	returnValue    []byte
	returnValueErr error
}

func newResultRow(snap task.Snapshot) (resultRow, error) {
	var (
		row resultRow
		err error
	)

	if row.arguments, err = json.Marshal(snap.Args); err != nil {
		return resultRow{}, fmt.Errorf("failed to encode task arguments: %w", err)
	}

	taskErrors := snap.Errors
	if taskErrors == nil {
		taskErrors = []task.TaskError{}
	}
	if row.errors, err = json.Marshal(taskErrors); err != nil {
		return resultRow{}, fmt.Errorf("failed to encode task errors: %w", err)
	}

	workerIDs := snap.WorkerIDs
	if workerIDs == nil {
		workerIDs = []string{}
	}
	if row.workerIDs, err = json.Marshal(workerIDs); err != nil {
		return resultRow{}, fmt.Errorf("failed to encode worker ids: %w", err)
	}

	if snap.ReturnValue != nil {
		row.returnValue, row.returnValueErr = json.Marshal(snap.ReturnValue)
		if row.returnValueErr != nil {
			row.returnValue = nil
		}
	}
	return row, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
