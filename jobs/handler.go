package jobs

import (
	"context"
	"fmt"
	"sync"
)

// Handler executes one kind of task
type Handler interface {
	// Name returns the task name this handler serves
	Name() string
	// Execute runs the task. A returned error triggers retry with
	// backoff until attempts are exhausted.
	Execute(ctx context.Context, job *Job) error
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc struct {
	TaskName string
	Fn       func(ctx context.Context, job *Job) error
}

func (h HandlerFunc) Name() string                                { return h.TaskName }
func (h HandlerFunc) Execute(ctx context.Context, job *Job) error { return h.Fn(ctx, job) }

// Registry maps task names to handlers
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler. Registering the same task name twice is a
// programmer error and panics.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := h.Name()
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("jobs: handler already registered for task %q", name))
	}
	r.handlers[name] = h
}

// Lookup returns the handler for a task name, or nil
func (r *Registry) Lookup(name string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[name]
}
