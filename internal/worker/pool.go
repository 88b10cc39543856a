package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Ken-Obieze/travel-tasks/internal/broker"
	"github.com/Ken-Obieze/travel-tasks/internal/dedup"
	"github.com/Ken-Obieze/travel-tasks/internal/logging"
	"github.com/Ken-Obieze/travel-tasks/internal/metrics"
	"github.com/Ken-Obieze/travel-tasks/internal/task"
	"github.com/Ken-Obieze/travel-tasks/internal/tracing"
)

// Options configures a Pool.
type Options struct {
	// Concurrency is the number of execution contexts per queue.
	Concurrency int
	// Channel is the broker channel shared by worker instances, so each
	// message is delivered to exactly one of them.
	Channel string
	// DLQSuffix is appended to a queue name for its dead-letter queue.
	DLQSuffix string
	// ExecTimeout bounds a single handler execution. Zero disables it.
	ExecTimeout time.Duration
	// Dedup skips envelopes whose id was already processed. Nil disables.
	Dedup dedup.Deduper
}

// Pool pulls envelopes from broker queues, resolves them against the
// registry, executes handlers, and settles each delivery according to the
// scheduler decision. Contexts share nothing mutable but the read-only
// registry and the metrics collectors.
type Pool struct {
	registry *task.Registry
	pub      broker.Publisher
	sink     broker.RawPublisher
	consumer broker.Consumer
	log      *logging.Logger
	opts     Options

	baseCtx context.Context
	cancel  context.CancelFunc
}

// New builds a pool. sink receives dead-letter records; it may be nil, in
// which case dead letters are only logged and counted.
func New(registry *task.Registry, pub broker.Publisher, sink broker.RawPublisher, consumer broker.Consumer, log *logging.Logger, opts Options) *Pool {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Channel == "" {
		opts.Channel = "workers"
	}
	if opts.DLQSuffix == "" {
		opts.DLQSuffix = "_dlq"
	}
	if opts.Dedup == nil {
		opts.Dedup = dedup.None{}
	}
	return &Pool{
		registry: registry,
		pub:      pub,
		sink:     sink,
		consumer: consumer,
		log:      log,
		opts:     opts,
	}
}

// Start attaches consumers for every queue referenced by the registry.
func (p *Pool) Start(ctx context.Context) error {
	p.baseCtx, p.cancel = context.WithCancel(ctx)
	for _, queue := range p.registry.Queues() {
		if err := p.consumer.Consume(queue, p.opts.Channel, p.opts.Concurrency, p.handle); err != nil {
			return fmt.Errorf("worker: consume %s: %w", queue, err)
		}
		p.log.Plain().WithQueue(queue).WithField("concurrency", p.opts.Concurrency).Info("consuming queue")
	}
	return nil
}

// Stop ceases pulling new deliveries and lets in-flight executions finish
// up to the grace deadline, then cancels them. A cancelled execution leaves
// its delivery unacknowledged; the broker redelivers it.
func (p *Pool) Stop(grace time.Duration) {
	done := make(chan struct{})
	go func() {
		p.consumer.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		p.log.Plain().Warn("grace period expired, cancelling in-flight executions")
		p.cancel()
		<-done
	}
	p.cancel()
}

func (p *Pool) handle(d broker.Delivery) {
	env, err := task.Decode(d.Body())
	if err != nil {
		// Malformed bodies never become resolvable; drop without requeue.
		p.log.Plain().WithError(err).Error("bad envelope payload")
		metrics.RecordDeadLetter("unknown", "malformed")
		d.Drop()
		return
	}

	ctx := tracing.FromCarrier(p.baseCtx, env.TraceHeaders)
	ctx, span := tracing.StartSpan(ctx, "worker.execute",
		attribute.String("task_id", env.ID),
		attribute.String("task_name", env.Name),
		attribute.String("queue", env.Queue),
		attribute.Int("attempt", env.Attempt),
	)
	defer span.End()

	// The seen-set only holds ids whose envelope reached a terminal settle,
	// so retry copies (same id, bumped attempt) pass through and execute.
	if dup, derr := p.opts.Dedup.Seen(ctx, env.ID); derr != nil {
		// Dedup failures degrade to at-least-once, never to dropped work.
		p.log.WithContext(ctx).WithTask(env.ID, env.Name, env.Attempt).WithError(derr).Warn("dedup check failed")
	} else if dup {
		tracing.AddSpanEvent(ctx, "delivery.duplicate")
		metrics.RecordDuplicateDelivery()
		p.log.WithContext(ctx).WithTask(env.ID, env.Name, env.Attempt).Info("duplicate envelope skipped")
		d.Finish()
		return
	}

	handler, err := p.registry.Resolve(env.Name)
	if err != nil {
		// Configuration error: the name will never resolve without a
		// deploy, so this is fatal, not retryable.
		tracing.SetSpanError(ctx, err)
		p.log.WithContext(ctx).WithTask(env.ID, env.Name, env.Attempt).WithError(err).Error("no handler for task")
		p.deadLetter(ctx, env, "unregistered task name")
		metrics.RecordExecution(env.Name, "fatal_failure", 0)
		d.Finish()
		p.markSeen(ctx, env)
		return
	}
	policy, _ := p.registry.Policy(env.Name)

	start := time.Now()
	outcome := p.execute(ctx, handler, env)
	elapsed := time.Since(start)
	metrics.RecordExecution(env.Name, outcome.Status.String(), elapsed)

	decision := Decide(outcome, env, policy)
	span.SetAttributes(
		attribute.String("outcome", outcome.Status.String()),
		attribute.String("decision", decision.Action.String()),
	)
	entry := p.log.WithContext(ctx).
		WithTask(env.ID, env.Name, env.Attempt).
		WithOutcome(outcome.Status.String()).
		WithField("elapsed_ms", elapsed.Milliseconds())
	if outcome.Reason != "" {
		entry = entry.WithField("reason", outcome.Reason)
	}

	switch decision.Action {
	case ActionAck:
		entry.Info("task done")
		d.Finish()
		p.markSeen(ctx, env)

	case ActionRetry:
		tracing.AddSpanEvent(ctx, "delivery.retry",
			attribute.Int("next_attempt", decision.NextAttempt),
			attribute.String("delay", decision.Delay.String()),
		)
		next := env.NextAttempt()
		if err := p.pub.EnqueueAfter(ctx, next, decision.Delay); err != nil {
			// Could not schedule the copy; requeue the original so the
			// attempt is not lost. The attempt count stays as-is, which
			// errs on the side of retrying once more.
			tracing.SetSpanError(ctx, err)
			entry.WithError(err).Error("re-enqueue failed, requeueing delivery")
			d.Requeue(decision.Delay)
			return
		}
		metrics.RecordRetry(env.Name)
		entry.WithField("delay", decision.Delay.String()).Info("task retry scheduled")
		d.Finish()

	case ActionDead:
		tracing.AddSpanEvent(ctx, "delivery.dead", attribute.String("reason", decision.Reason))
		entry.WithField("dead_reason", decision.Reason).Error("task permanently failed")
		p.deadLetter(ctx, env, decision.Reason)
		d.Finish()
		p.markSeen(ctx, env)
	}
}

// markSeen records a terminally settled envelope id. Only ids that will
// never legitimately be delivered again may be marked: acknowledged and
// dead-lettered envelopes qualify, scheduled retries do not, and an
// execution cancelled before settling must stay unmarked so the broker's
// redelivery runs it.
func (p *Pool) markSeen(ctx context.Context, env task.Envelope) {
	if err := p.opts.Dedup.Mark(ctx, env.ID); err != nil {
		p.log.WithContext(ctx).WithTask(env.ID, env.Name, env.Attempt).WithError(err).Warn("dedup mark failed")
	}
}

// execute runs one handler attempt, converting panics to fatal outcomes so
// handler bugs never crash a worker context.
func (p *Pool) execute(ctx context.Context, handler task.Handler, env task.Envelope) (outcome task.Outcome) {
	if p.opts.ExecTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.ExecTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			outcome = task.Fatal(fmt.Sprintf("handler panic: %v", r))
		}
	}()
	return handler.Handle(ctx, env)
}

func (p *Pool) deadLetter(ctx context.Context, env task.Envelope, reason string) {
	metrics.RecordDeadLetter(env.Name, reasonClass(reason))
	if p.sink == nil {
		return
	}
	record := NewDeadLetter(env, reason)
	body, err := json.Marshal(record)
	if err != nil {
		p.log.WithContext(ctx).WithTask(env.ID, env.Name, env.Attempt).WithError(err).Error("dead letter marshal failed")
		return
	}
	dlq := env.Queue + p.opts.DLQSuffix
	if err := p.sink.PublishRaw(ctx, dlq, body); err != nil {
		p.log.WithContext(ctx).WithTask(env.ID, env.Name, env.Attempt).WithError(err).Error("dead letter publish failed")
		return
	}
	p.log.WithContext(ctx).WithTask(env.ID, env.Name, env.Attempt).WithQueue(dlq).Info("dead letter published")
}

// reasonClass buckets free-form failure reasons for metrics labels.
func reasonClass(reason string) string {
	switch {
	case reason == "unregistered task name":
		return "unregistered"
	case strings.HasPrefix(reason, "retries exhausted"):
		return "retries_exhausted"
	default:
		return "fatal"
	}
}
