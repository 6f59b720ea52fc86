// Package main implements a command that enqueues one registered task
// through the configured backends and prints the resulting task result.
//
// Usage:
//
//	enqueue -config config.yaml -task example.add -args '[1]' -kwargs '{"b": 2}'
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/phrazzld/pushtasks/internal/bootstrap"
	"github.com/phrazzld/pushtasks/internal/config"
	"github.com/phrazzld/pushtasks/internal/platform/logger"
	"github.com/phrazzld/pushtasks/internal/store"
	"github.com/phrazzld/pushtasks/internal/task"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "enqueue: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	taskName   string
	args       string
	kwargs     string
	queue      string
	backend    string
	delay      time.Duration
	inTx       bool
}

func parseFlags(argv []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("enqueue", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "path to a YAML configuration file")
	fs.StringVar(&o.taskName, "task", "", "name of the registered task to enqueue")
	fs.StringVar(&o.args, "args", "[]", "positional arguments as a JSON list")
	fs.StringVar(&o.kwargs, "kwargs", "{}", "keyword arguments as a JSON object")
	fs.StringVar(&o.queue, "queue", "", "override the task's queue")
	fs.StringVar(&o.backend, "backend", "", "override the task's backend alias")
	fs.DurationVar(&o.delay, "delay", 0, "defer execution by this long")
	fs.BoolVar(&o.inTx, "tx", false, "enqueue inside a database transaction")

	if err := fs.Parse(argv); err != nil {
		return options{}, err
	}
	if o.taskName == "" {
		return options{}, errors.New("-task is required")
	}
	return o, nil
}

func run(ctx context.Context, argv []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(argv, stderr)
	if err != nil {
		return err
	}

	var args []json.RawMessage
	if err := json.Unmarshal([]byte(o.args), &args); err != nil {
		return fmt.Errorf("-args must be a JSON list: %w", err)
	}
	var kwargs map[string]json.RawMessage
	if err := json.Unmarshal([]byte(o.kwargs), &kwargs); err != nil {
		return fmt.Errorf("-kwargs must be a JSON object: %w", err)
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.SetupWithWriter(cfg.Server, stderr)

	components, err := bootstrap.Build(ctx, cfg, log, otel.GetTracerProvider())
	if err != nil {
		return err
	}
	defer components.Close()

	t, err := components.Registry.Resolve(o.taskName)
	if err != nil {
		return err
	}
	t = t.Using(taskOptions(o)...)

	result, err := enqueue(ctx, components, o.inTx, t, toAny(args), toAnyMap(kwargs))
	if err != nil {
		return err
	}

	log.Info("task enqueued",
		slog.String("result_id", result.ID()),
		slog.String("task_name", result.TaskName()),
		slog.String("status", string(result.Status())))

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func taskOptions(o options) []task.Option {
	var opts []task.Option
	if o.queue != "" {
		opts = append(opts, task.WithQueue(o.queue))
	}
	if o.backend != "" {
		opts = append(opts, task.WithBackend(o.backend))
	}
	if o.delay > 0 {
		opts = append(opts, task.WithRunAfter(task.After(o.delay)))
	}
	return opts
}

func enqueue(
	ctx context.Context,
	c *bootstrap.Components,
	inTx bool,
	t *task.Task,
	args []any,
	kwargs map[string]any,
) (*task.Result, error) {
	if !inTx {
		return c.Backends.Enqueue(ctx, t, args, kwargs)
	}
	if c.DB == nil {
		return nil, fmt.Errorf("%w: -tx needs database.url", config.ErrImproperlyConfigured)
	}

	var result *task.Result
	err := store.RunInTransaction(ctx, c.DB, func(ctx context.Context, _ *store.Tx) error {
		var err error
		result, err = c.Backends.Enqueue(ctx, t, args, kwargs)
		return err
	})
	return result, err
}

func toAny(raw []json.RawMessage) []any {
	out := make([]any, len(raw))
	for i, v := range raw {
		out[i] = v
	}
	return out
}

func toAnyMap(raw map[string]json.RawMessage) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	return out
}
