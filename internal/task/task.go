package task

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// Defaults applied by New when no option overrides them.
const (
	DefaultQueueName = "default"
	DefaultBackend   = "default"
)

// Func is a task body that receives only its arguments.
type Func func(ctx context.Context, args Arguments) (any, error)

// ContextFunc is a task body that also receives its execution Context.
type ContextFunc func(ctx context.Context, tc *Context, args Arguments) (any, error)

// RunAfter is either a delay relative to submission or an absolute time.
// The zero value means "as soon as possible".
type RunAfter struct {
	delay time.Duration
	at    time.Time
}

// After schedules execution d after submission.
func After(d time.Duration) RunAfter {
	return RunAfter{delay: d}
}

// At schedules execution at an absolute time.
func At(t time.Time) RunAfter {
	return RunAfter{at: t}
}

// IsZero reports whether no deferred execution was requested.
func (r RunAfter) IsZero() bool {
	return r.delay == 0 && r.at.IsZero()
}

// Resolve returns the absolute execution time for a submission made at now.
func (r RunAfter) Resolve(now time.Time) time.Time {
	if !r.at.IsZero() {
		return r.at
	}
	return now.Add(r.delay)
}

// Task is a named, registered unit of work.
type Task struct {
	// Name is the stable identifier sent over the wire as task_path.
	Name string

	// QueueName selects the push queue the task is scheduled on.
	QueueName string

	// RunAfter optionally defers execution.
	RunAfter RunAfter

	// Backend is the alias of the backend used to enqueue the task.
	Backend string

	fn    Func
	ctxFn ContextFunc
}

// Option customizes a Task.
type Option func(*Task)

// WithQueue sets the queue name.
func WithQueue(name string) Option {
	return func(t *Task) { t.QueueName = name }
}

// WithRunAfter defers execution.
func WithRunAfter(r RunAfter) Option {
	return func(t *Task) { t.RunAfter = r }
}

// WithBackend sets the backend alias.
func WithBackend(alias string) Option {
	return func(t *Task) { t.Backend = alias }
}

// New defines a task whose body receives only its arguments.
func New(name string, fn Func, opts ...Option) *Task {
	t := &Task{Name: name, QueueName: DefaultQueueName, Backend: DefaultBackend, fn: fn}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewWithContext defines a task whose body receives its execution Context.
func NewWithContext(name string, fn ContextFunc, opts ...Option) *Task {
	t := &Task{Name: name, QueueName: DefaultQueueName, Backend: DefaultBackend, ctxFn: fn}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Using returns a copy of t with opts applied; t itself is unchanged.
func (t *Task) Using(opts ...Option) *Task {
	c := *t
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}

// TakesContext reports whether the body expects an execution Context.
func (t *Task) TakesContext() bool {
	return t.ctxFn != nil
}

// Validate checks that the definition can be enqueued and run.
func (t *Task) Validate() error {
	switch {
	case t == nil:
		return fmt.Errorf("%w: nil task", ErrInvalidTask)
	case t.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidTask)
	case t.QueueName == "":
		return fmt.Errorf("%w: %s: queue name is required", ErrInvalidTask, t.Name)
	case t.fn == nil && t.ctxFn == nil:
		return fmt.Errorf("%w: %s: no task body", ErrInvalidTask, t.Name)
	case t.fn != nil && t.ctxFn != nil:
		return fmt.Errorf("%w: %s: more than one task body", ErrInvalidTask, t.Name)
	}
	return nil
}

// Call runs the task body for r. A panic in the body is returned as a *PanicError.
func (t *Task) Call(ctx context.Context, r *Result) (value any, err error) {
	defer func() {
		if p := recover(); p != nil {
			value = nil
			err = &PanicError{Value: p, Stack: debug.Stack()}
		}
	}()

	args := r.Args()
	if t.ctxFn != nil {
		return t.ctxFn(ctx, &Context{Result: r}, args)
	}
	return t.fn(ctx, args)
}

// Context is handed to tasks that take context.
type Context struct {
	// Result is the execution record of the current attempt.
	Result *Result
}

// Attempt returns the 1-based attempt number of the current execution.
func (c *Context) Attempt() int {
	return c.Result.Attempts()
}
