package dispatch

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Ken-Obieze/travel-tasks/internal/broker"
	"github.com/Ken-Obieze/travel-tasks/internal/logging"
	"github.com/Ken-Obieze/travel-tasks/internal/metrics"
	"github.com/Ken-Obieze/travel-tasks/internal/task"
	"github.com/Ken-Obieze/travel-tasks/internal/tracing"
)

// Dispatcher is the caller-facing enqueue surface. After a state-changing
// operation commits, the caller enqueues exactly one envelope and moves on:
// callers never block on worker completion, and a failed enqueue is an
// operational error surfaced to the caller's logs, never to the end user.
type Dispatcher struct {
	registry *task.Registry
	pub      broker.Publisher
	log      *logging.Logger
}

func New(registry *task.Registry, pub broker.Publisher, log *logging.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, pub: pub, log: log}
}

// Option adjusts a single enqueue.
type Option func(*task.Envelope)

// ToQueue overrides the queue the task was registered with.
func ToQueue(queue string) Option {
	return func(e *task.Envelope) {
		e.Queue = queue
	}
}

// Enqueue builds an envelope for a registered task name and publishes it.
// The task name must have been validated at startup; an unknown name here
// is a programming error and is returned as such.
func (d *Dispatcher) Enqueue(ctx context.Context, name string, payload map[string]any, opts ...Option) error {
	policy, err := d.registry.Policy(name)
	if err != nil {
		return err
	}
	queue, err := d.registry.Queue(name)
	if err != nil {
		return err
	}

	ctx, span := tracing.StartSpan(ctx, "dispatch.enqueue",
		attribute.String("task_name", name),
		attribute.String("queue", queue),
	)
	defer span.End()

	env := task.NewEnvelope(name, queue, payload, policy.MaxRetries)
	for _, opt := range opts {
		opt(&env)
	}
	env.TraceHeaders = tracing.Carrier(ctx)

	if err := d.pub.Enqueue(ctx, env); err != nil {
		tracing.SetSpanError(ctx, err)
		d.log.WithContext(ctx).WithTask(env.ID, name, 0).WithQueue(env.Queue).WithError(err).Error("enqueue failed")
		return fmt.Errorf("dispatch %s: %w", name, err)
	}
	metrics.RecordEnqueue(name, env.Queue)
	d.log.WithContext(ctx).WithTask(env.ID, name, 0).WithQueue(env.Queue).Info("task enqueued")
	return nil
}
