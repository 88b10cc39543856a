package broker

import (
	"context"
	"errors"
	"time"

	"github.com/Ken-Obieze/travel-tasks/internal/task"
)

// ErrUnavailable reports that the transport could not be reached at
// enqueue time. The caller decides whether to retry the enqueue or fail
// the triggering operation.
var ErrUnavailable = errors.New("broker: unavailable")

// ErrClosed reports use of a consumer or publisher after Stop.
var ErrClosed = errors.New("broker: closed")

// Publisher accepts serialized envelopes for durable delivery. EnqueueAfter
// is the scheduled-redelivery capability: delayed delivery is delegated to
// the broker, never to a sleeping worker.
type Publisher interface {
	Enqueue(ctx context.Context, env task.Envelope) error
	EnqueueAfter(ctx context.Context, env task.Envelope, delay time.Duration) error
}

// RawPublisher publishes pre-serialized bodies, used for dead-letter
// records that are not task envelopes.
type RawPublisher interface {
	PublishRaw(ctx context.Context, queue string, body []byte) error
}

// Delivery is one in-flight message. The broker owns the message until
// exactly one of Finish, Requeue, or Drop is called; an abandoned delivery
// is redelivered (at-least-once).
type Delivery interface {
	// Body returns the serialized envelope.
	Body() []byte
	// Finish acknowledges the delivery, permanently removing the message.
	Finish()
	// Requeue rejects the delivery and returns the message to the queue
	// after the given delay.
	Requeue(delay time.Duration)
	// Drop rejects the delivery without requeue.
	Drop()
}

// HandlerFunc processes one delivery. Returning does not acknowledge;
// the handler must settle the delivery itself.
type HandlerFunc func(d Delivery)

// Consumer delivers messages from one queue to registered handlers, each
// message visible to at most one handler at a time.
type Consumer interface {
	// Consume attaches concurrency handler contexts to the queue and
	// begins delivering. It does not block.
	Consume(queue, channel string, concurrency int, h HandlerFunc) error
	// Stop ceases delivery and waits for the consumer to drain. A stopped
	// consumer cannot be restarted.
	Stop()
}
