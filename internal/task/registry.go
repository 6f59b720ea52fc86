package task

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps stable task names to their definitions. It is populated at
// startup and read concurrently by the dispatch endpoint.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// Register adds t under t.Name.
func (r *Registry) Register(t *Task) error {
	if err := t.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[t.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, t.Name)
	}
	r.tasks[t.Name] = t
	return nil
}

// MustRegister is Register for package-level task declarations.
func (r *Registry) MustRegister(tasks ...*Task) {
	for _, t := range tasks {
		if err := r.Register(t); err != nil {
			// ALLOW-PANIC: registration happens at startup with static definitions
			panic(err)
		}
	}
}

// Resolve looks up name. A miss returns ErrTaskNotFound; an entry that cannot
// run under that name returns ErrNotATask.
func (r *Registry) Resolve(name string) (*Task, error) {
	r.mu.RLock()
	t, ok := r.tasks[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	if t == nil || t.Name != name || t.Validate() != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotATask, name)
	}
	return t, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
