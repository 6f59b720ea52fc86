// Package backend defines the task backend abstraction and the ordered set
// of backends configured for the application.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/phrazzld/pushtasks/internal/authn"
	"github.com/phrazzld/pushtasks/internal/config"
	"github.com/phrazzld/pushtasks/internal/task"
)

// ErrBackendNotConfigured is returned when no backend has the requested alias.
var ErrBackendNotConfigured = fmt.Errorf("%w: task backend not configured", config.ErrImproperlyConfigured)

// Backend submits tasks for later execution.
type Backend interface {
	// Alias returns the configured name of the backend.
	Alias() string

	// Enqueue schedules t with the given arguments and returns the result
	// tracking the submission.
	Enqueue(ctx context.Context, t *task.Task, args []any, kwargs map[string]any) (*task.Result, error)
}

// PushBackend is a backend whose queue delivers tasks to the dispatch
// endpoint. Its authenticator guards that endpoint.
type PushBackend interface {
	Backend

	// Authenticator returns the authenticator for push requests.
	Authenticator() (authn.Authenticator, error)
}

// Backends is the ordered collection of configured backends.
type Backends struct {
	ordered []Backend
	byAlias map[string]Backend
}

// New creates a collection in the given order. Aliases must be unique.
func New(bs ...Backend) (*Backends, error) {
	c := &Backends{
		ordered: make([]Backend, 0, len(bs)),
		byAlias: make(map[string]Backend, len(bs)),
	}
	for _, b := range bs {
		if b == nil {
			return nil, errors.New("nil backend")
		}
		alias := b.Alias()
		if _, exists := c.byAlias[alias]; exists {
			return nil, fmt.Errorf("%w: duplicate task backend %q", config.ErrImproperlyConfigured, alias)
		}
		c.ordered = append(c.ordered, b)
		c.byAlias[alias] = b
	}
	return c, nil
}

// Get returns the backend registered under alias.
func (c *Backends) Get(alias string) (Backend, error) {
	b, ok := c.byAlias[alias]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotConfigured, alias)
	}
	return b, nil
}

// All returns the backends in configuration order.
func (c *Backends) All() []Backend {
	return append([]Backend(nil), c.ordered...)
}

// PushBackend returns the backend governing the dispatch endpoint: the backend
// named alias, or the first push backend when alias is empty.
func (c *Backends) PushBackend(alias string) (PushBackend, error) {
	if alias != "" {
		b, err := c.Get(alias)
		if err != nil {
			return nil, err
		}
		pb, ok := b.(PushBackend)
		if !ok {
			return nil, fmt.Errorf("%w: task backend %q does not receive pushed tasks",
				config.ErrImproperlyConfigured, alias)
		}
		return pb, nil
	}

	for _, b := range c.ordered {
		if pb, ok := b.(PushBackend); ok {
			return pb, nil
		}
	}
	return nil, fmt.Errorf("%w: no push queue backend is configured", config.ErrImproperlyConfigured)
}

// Enqueue submits t through the backend named by t.Backend.
func (c *Backends) Enqueue(
	ctx context.Context,
	t *task.Task,
	args []any,
	kwargs map[string]any,
) (*task.Result, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil task", task.ErrInvalidTask)
	}
	b, err := c.Get(t.Backend)
	if err != nil {
		return nil, err
	}
	return b.Enqueue(ctx, t, args, kwargs)
}
