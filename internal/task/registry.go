package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var ErrNotRegistered = errors.New("task: name not registered")

// Handler executes one task attempt. Implementations must be safe to
// re-run: delivery is at-least-once and duplicates do arrive.
type Handler interface {
	Handle(ctx context.Context, env Envelope) Outcome
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, env Envelope) Outcome

func (f HandlerFunc) Handle(ctx context.Context, env Envelope) Outcome {
	return f(ctx, env)
}

type registration struct {
	handler Handler
	policy  RetryPolicy
	queue   string
}

// Registry binds task names to handler logic and retry policy. It is
// populated once during initialization, before workers start, and is
// read-only afterwards; duplicate registration is a startup error.
type Registry struct {
	entries map[string]registration
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

// Register binds name to handler, queue, and policy. Registering the same
// name twice is a configuration error raised here, not at dispatch time.
func (r *Registry) Register(name, queue string, h Handler, policy RetryPolicy) error {
	if name == "" {
		return errors.New("task: register with empty name")
	}
	if h == nil {
		return fmt.Errorf("task: register %q with nil handler", name)
	}
	if _, dup := r.entries[name]; dup {
		return fmt.Errorf("task: %q registered twice", name)
	}
	r.entries[name] = registration{handler: h, policy: policy, queue: queue}
	return nil
}

// Declare binds name to queue and policy without a handler, for
// dispatch-only processes that enqueue tasks executed elsewhere. A
// declared name resolves policies and queues but never a handler.
func (r *Registry) Declare(name, queue string, policy RetryPolicy) error {
	if name == "" {
		return errors.New("task: declare with empty name")
	}
	if _, dup := r.entries[name]; dup {
		return fmt.Errorf("task: %q registered twice", name)
	}
	r.entries[name] = registration{policy: policy, queue: queue}
	return nil
}

// MustRegister is Register for wiring code that treats a duplicate as fatal.
func (r *Registry) MustRegister(name, queue string, h Handler, policy RetryPolicy) {
	if err := r.Register(name, queue, h, policy); err != nil {
		panic(err)
	}
}

// Resolve returns the handler for a task name.
func (r *Registry) Resolve(name string) (Handler, error) {
	reg, ok := r.entries[name]
	if !ok || reg.handler == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, name)
	}
	return reg.handler, nil
}

// Policy returns the retry policy registered for a task name.
func (r *Registry) Policy(name string) (RetryPolicy, error) {
	reg, ok := r.entries[name]
	if !ok {
		return RetryPolicy{}, fmt.Errorf("%w: %q", ErrNotRegistered, name)
	}
	return reg.policy, nil
}

// Queue returns the routing queue registered for a task name.
func (r *Registry) Queue(name string) (string, error) {
	reg, ok := r.entries[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotRegistered, name)
	}
	return reg.queue, nil
}

// Names returns the registered task names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Queues returns the distinct queues referenced by registrations, sorted.
func (r *Registry) Queues() []string {
	seen := make(map[string]struct{})
	for _, reg := range r.entries {
		seen[reg.queue] = struct{}{}
	}
	queues := make([]string, 0, len(seen))
	for q := range seen {
		queues = append(queues, q)
	}
	sort.Strings(queues)
	return queues
}

// ValidateNames fails fast when a referenced task name has no registered
// handler, so misconfiguration surfaces at startup rather than at delivery.
func (r *Registry) ValidateNames(names ...string) error {
	for _, n := range names {
		if _, ok := r.entries[n]; !ok {
			return fmt.Errorf("%w: %q", ErrNotRegistered, n)
		}
	}
	return nil
}
