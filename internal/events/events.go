package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pushtasks/internal/task"
)

// Type identifies a lifecycle event.
type Type string

// Lifecycle event types.
const (
	// TaskEnqueued fires once the push queue accepted a task.
	TaskEnqueued Type = "task_enqueued"

	// TaskStarted fires before a task body runs.
	TaskStarted Type = "task_started"

	// TaskFinished fires after a task body returned or failed.
	// Consumers distinguish the outcome by the result's status.
	TaskFinished Type = "task_finished"
)

// Event is a lifecycle notification about a task result.
type Event struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is the lifecycle transition being reported
	Type Type `json:"type"`

	// Backend is the alias of the backend that published the event
	Backend string `json:"backend"`

	// Result is the live result the event refers to
	Result *task.Result `json:"result"`

	// OccurredAt is when the event was created
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEvent creates an event of the given type for r.
func NewEvent(eventType Type, backend string, r *task.Result) *Event {
	return &Event{
		ID:         uuid.New(),
		Type:       eventType,
		Backend:    backend,
		Result:     r,
		OccurredAt: time.Now(),
	}
}

// Handler defines an interface for components that subscribe to lifecycle events.
type Handler interface {
	// HandleEvent processes the given event within the provided context.
	HandleEvent(ctx context.Context, event *Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event *Event) error

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// Emitter defines an interface for components that publish lifecycle events.
// Publishers do not know which handlers, if any, are subscribed.
type Emitter interface {
	// Emit publishes the given event to all registered handlers.
	Emit(ctx context.Context, event *Event) error
}

// NopEmitter discards every event.
type NopEmitter struct{}

// Emit implements Emitter.
func (NopEmitter) Emit(context.Context, *Event) error { return nil }
