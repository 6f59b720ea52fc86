// Package example defines the sample tasks shipped with the server and the
// enqueue CLI.
package example

import (
	"context"
	"errors"
	"log/slog"

	"github.com/phrazzld/pushtasks/internal/platform/logger"
	"github.com/phrazzld/pushtasks/internal/task"
)

// ErrMissingEmail is returned by SendWelcome when no address was given.
var ErrMissingEmail = errors.New("email is required")

// DoTask logs its arguments. It takes one positional int and an optional
// keyword int b that defaults to 1.
var DoTask = task.New("example.do_task", doTask, task.WithQueue("test-1"))

// Add returns the sum of its positional argument and keyword argument b.
var Add = task.New("example.add", add)

// SendWelcome pretends to send a welcome email to the "email" keyword argument.
var SendWelcome = task.NewWithContext("example.send_welcome", sendWelcome, task.WithQueue("emails"))

// Register adds the example tasks to r.
func Register(r *task.Registry) error {
	for _, t := range []*task.Task{DoTask, Add, SendWelcome} {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func doTask(ctx context.Context, args task.Arguments) (any, error) {
	var a int
	if err := args.Arg(0, &a); err != nil {
		return nil, err
	}
	b := 1
	if _, err := args.Kwarg("b", &b); err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("doing task", slog.Int("a", a), slog.Int("b", b))
	return nil, nil
}

func add(_ context.Context, args task.Arguments) (any, error) {
	var a, b int
	if err := args.Arg(0, &a); err != nil {
		return nil, err
	}
	if _, err := args.Kwarg("b", &b); err != nil {
		return nil, err
	}
	return a + b, nil
}

func sendWelcome(ctx context.Context, tc *task.Context, args task.Arguments) (any, error) {
	var email string
	if _, err := args.Kwarg("email", &email); err != nil {
		return nil, err
	}
	if email == "" {
		return nil, ErrMissingEmail
	}

	logger.FromContext(ctx).Info("sending welcome email",
		slog.String("result_id", tc.Result.ID()),
		slog.Int("attempt", tc.Attempt()))
	return map[string]any{"sent": true, "attempt": tc.Attempt()}, nil
}
