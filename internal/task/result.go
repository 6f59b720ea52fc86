package task

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"time"
)

// Status is the lifecycle state of a Result.
type Status string

// Possible result status values.
const (
	StatusReady      Status = "READY"
	StatusEnqueued   Status = "ENQUEUED"
	StatusRunning    Status = "RUNNING"
	StatusSuccessful Status = "SUCCESSFUL"
	StatusFailed     Status = "FAILED"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusSuccessful || s == StatusFailed
}

// Rank orders statuses along the lifecycle. Terminal statuses share the
// highest rank.
func (s Status) Rank() int {
	switch s {
	case StatusReady:
		return 0
	case StatusEnqueued:
		return 1
	case StatusRunning:
		return 2
	default:
		return 3
	}
}

// ResultIDLength is the number of characters in a generated result id.
const ResultIDLength = 32

const resultIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// NewResultID returns a random id usable as a push-queue task name.
func NewResultID() string {
	b := make([]byte, ResultIDLength)
	max := big.NewInt(int64(len(resultIDAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// ALLOW-PANIC: crypto/rand failing means the host has no entropy source
			panic(fmt.Sprintf("failed to generate result id: %v", err))
		}
		b[i] = resultIDAlphabet[n.Int64()]
	}
	return string(b)
}

// Result records one enqueue or one execution attempt of a task. Results are
// never shared between attempts; state only changes through the Mark methods.
type Result struct {
	id       string
	taskName string
	queue    string
	backend  string
	args     Arguments

	status          Status
	enqueuedAt      time.Time
	startedAt       time.Time
	lastAttemptedAt time.Time
	finishedAt      time.Time

	errors      []TaskError
	workerIDs   []string
	retryCount  int
	returnValue any
}

// NewResult creates a READY result for t.
func NewResult(id string, t *Task, backend string, args Arguments) *Result {
	return &Result{
		id:       id,
		taskName: t.Name,
		queue:    t.QueueName,
		backend:  backend,
		args:     args.Clone(),
		status:   StatusReady,
	}
}

// NewRunningResult creates an execute-side result already in RUNNING.
func NewRunningResult(
	id string,
	t *Task,
	backend string,
	args Arguments,
	retryCount int,
	at time.Time,
	workerID string,
) *Result {
	r := NewResult(id, t, backend, args)
	if retryCount > 0 {
		r.retryCount = retryCount
	}
	r.status = StatusRunning
	r.startedAt = at
	r.lastAttemptedAt = at
	if workerID != "" {
		r.workerIDs = append(r.workerIDs, workerID)
	}
	return r
}

// ID returns the result id. On the execute side it equals the queue's task name.
func (r *Result) ID() string { return r.id }

// TaskName returns the identifier of the task this result belongs to.
func (r *Result) TaskName() string { return r.taskName }

// QueueName returns the queue the task was scheduled on.
func (r *Result) QueueName() string { return r.queue }

// Backend returns the alias of the backend that produced the result.
func (r *Result) Backend() string { return r.backend }

// Status returns the current status.
func (r *Result) Status() Status { return r.status }

// Args returns a copy of the task arguments.
func (r *Result) Args() Arguments { return r.args.Clone() }

// EnqueuedAt returns when the queue accepted the task, or the zero time.
func (r *Result) EnqueuedAt() time.Time { return r.enqueuedAt }

// StartedAt returns when execution began, or the zero time.
func (r *Result) StartedAt() time.Time { return r.startedAt }

// LastAttemptedAt returns when the latest attempt began, or the zero time.
func (r *Result) LastAttemptedAt() time.Time { return r.lastAttemptedAt }

// FinishedAt returns when execution reached a terminal state, or the zero time.
func (r *Result) FinishedAt() time.Time { return r.finishedAt }

// Errors returns the failures observed by this process, oldest first.
func (r *Result) Errors() []TaskError {
	return append([]TaskError(nil), r.errors...)
}

// WorkerIDs returns the ids of the workers that ran this result.
func (r *Result) WorkerIDs() []string {
	return append([]string(nil), r.workerIDs...)
}

// RetryCount returns the number of earlier deliveries reported by the queue.
func (r *Result) RetryCount() int { return r.retryCount }

// Attempts returns the 1-based attempt number.
func (r *Result) Attempts() int { return r.retryCount + 1 }

// ReturnValue returns the task's return value once the result is SUCCESSFUL.
func (r *Result) ReturnValue() (any, bool) {
	if r.status != StatusSuccessful {
		return nil, false
	}
	return r.returnValue, true
}

// MarkEnqueued records that the queue accepted the task.
func (r *Result) MarkEnqueued(at time.Time) error {
	if err := r.transition(StatusEnqueued, StatusReady); err != nil {
		return err
	}
	r.enqueuedAt = at
	return nil
}

// MarkRunning records the start of an execution attempt.
func (r *Result) MarkRunning(at time.Time, workerID string) error {
	if err := r.transition(StatusRunning, StatusReady, StatusEnqueued); err != nil {
		return err
	}
	r.startedAt = at
	r.lastAttemptedAt = at
	if workerID != "" {
		r.workerIDs = append(r.workerIDs, workerID)
	}
	return nil
}

// MarkSucceeded records a normal return.
func (r *Result) MarkSucceeded(value any, at time.Time) error {
	if err := r.transition(StatusSuccessful, StatusRunning); err != nil {
		return err
	}
	r.returnValue = value
	r.finishedAt = at
	return nil
}

// MarkFailed records a failed attempt.
func (r *Result) MarkFailed(taskErr TaskError, at time.Time) error {
	if err := r.transition(StatusFailed, StatusRunning); err != nil {
		return err
	}
	r.errors = append(r.errors, taskErr)
	r.finishedAt = at
	return nil
}

func (r *Result) transition(to Status, from ...Status) error {
	for _, s := range from {
		if r.status == s {
			r.status = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s (result %s)", ErrInvalidTransition, r.status, to, r.id)
}

// Snapshot is a serializable copy of a Result.
type Snapshot struct {
	ID              string      `json:"id"`
	TaskName        string      `json:"task_name"`
	QueueName       string      `json:"queue_name"`
	Backend         string      `json:"backend"`
	Status          Status      `json:"status"`
	Args            Arguments   `json:"arguments"`
	EnqueuedAt      *time.Time  `json:"enqueued_at,omitempty"`
	StartedAt       *time.Time  `json:"started_at,omitempty"`
	LastAttemptedAt *time.Time  `json:"last_attempted_at,omitempty"`
	FinishedAt      *time.Time  `json:"finished_at,omitempty"`
	Errors          []TaskError `json:"errors"`
	WorkerIDs       []string    `json:"worker_ids"`
	RetryCount      int         `json:"retry_count"`
	Attempts        int         `json:"attempts"`
	ReturnValue     any         `json:"return_value,omitempty"`
}

// Snapshot returns a point-in-time copy of r.
func (r *Result) Snapshot() Snapshot {
	s := Snapshot{
		ID:              r.id,
		TaskName:        r.taskName,
		QueueName:       r.queue,
		Backend:         r.backend,
		Status:          r.status,
		Args:            r.args.Clone(),
		EnqueuedAt:      optionalTime(r.enqueuedAt),
		StartedAt:       optionalTime(r.startedAt),
		LastAttemptedAt: optionalTime(r.lastAttemptedAt),
		FinishedAt:      optionalTime(r.finishedAt),
		Errors:          r.Errors(),
		WorkerIDs:       r.WorkerIDs(),
		RetryCount:      r.retryCount,
		Attempts:        r.Attempts(),
	}
	if s.Errors == nil {
		s.Errors = []TaskError{}
	}
	if s.WorkerIDs == nil {
		s.WorkerIDs = []string{}
	}
	if v, ok := r.ReturnValue(); ok {
		s.ReturnValue = v
	}
	return s
}

// Supersedes reports whether s is at least as new as stored, another snapshot
// of the same result. A later attempt always wins; within one attempt the
// status may not move backwards. The enqueue and execute sides share a result
// id, so a task_enqueued event can arrive after the task already finished.
func (s Snapshot) Supersedes(stored Snapshot) bool {
	if s.RetryCount != stored.RetryCount {
		return s.RetryCount > stored.RetryCount
	}
	return s.Status.Rank() >= stored.Status.Rank()
}

// Merge returns the snapshot to keep when next arrives for a result stored as
// s, and whether it differs from s. A superseding next replaces s but keeps
// timestamps it does not carry; a stale next only fills in a missing enqueue
// time.
func (s Snapshot) Merge(next Snapshot) (Snapshot, bool) {
	if next.Supersedes(s) {
		if next.EnqueuedAt == nil {
			next.EnqueuedAt = s.EnqueuedAt
		}
		if next.StartedAt == nil {
			next.StartedAt = s.StartedAt
		}
		if next.LastAttemptedAt == nil {
			next.LastAttemptedAt = s.LastAttemptedAt
		}
		return next, true
	}
	if s.EnqueuedAt == nil && next.EnqueuedAt != nil {
		s.EnqueuedAt = next.EnqueuedAt
		return s, true
	}
	return s, false
}

// MarshalJSON encodes the result's snapshot.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Snapshot())
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
