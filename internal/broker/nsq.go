package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/nsqio/go-nsq"

	"github.com/Ken-Obieze/travel-tasks/internal/task"
)

// NSQPublisher publishes envelopes to nsqd, one topic per logical queue.
type NSQPublisher struct {
	prod *nsq.Producer
}

// NewNSQPublisher connects a producer to nsqd and verifies reachability.
func NewNSQPublisher(nsqdTCPAddr string) (*NSQPublisher, error) {
	prod, err := nsq.NewProducer(nsqdTCPAddr, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := prod.Ping(); err != nil {
		prod.Stop()
		return nil, fmt.Errorf("%w: ping %s: %v", ErrUnavailable, nsqdTCPAddr, err)
	}
	return &NSQPublisher{prod: prod}, nil
}

func (p *NSQPublisher) Enqueue(ctx context.Context, env task.Envelope) error {
	return p.publish(env, 0)
}

func (p *NSQPublisher) EnqueueAfter(ctx context.Context, env task.Envelope, delay time.Duration) error {
	return p.publish(env, delay)
}

func (p *NSQPublisher) publish(env task.Envelope, delay time.Duration) error {
	body, err := env.Encode()
	if err != nil {
		return err
	}
	if delay > 0 {
		err = p.prod.DeferredPublish(env.Queue, delay, body)
	} else {
		err = p.prod.Publish(env.Queue, body)
	}
	if err != nil {
		return fmt.Errorf("%w: publish %s: %v", ErrUnavailable, env.Queue, err)
	}
	return nil
}

func (p *NSQPublisher) PublishRaw(ctx context.Context, queue string, body []byte) error {
	if err := p.prod.Publish(queue, body); err != nil {
		return fmt.Errorf("%w: publish %s: %v", ErrUnavailable, queue, err)
	}
	return nil
}

// Stop flushes pending publishes and releases the producer connection.
func (p *NSQPublisher) Stop() {
	p.prod.Stop()
}

// NSQConsumer consumes one or more queues from nsqd, each queue through
// its own underlying nsq consumer on a shared channel name.
type NSQConsumer struct {
	nsqdTCPAddr    string
	lookupHTTPAddr string
	consumers      []*nsq.Consumer
}

func NewNSQConsumer(nsqdTCPAddr, lookupHTTPAddr string) *NSQConsumer {
	return &NSQConsumer{nsqdTCPAddr: nsqdTCPAddr, lookupHTTPAddr: lookupHTTPAddr}
}

func (c *NSQConsumer) Consume(queue, channel string, concurrency int, h HandlerFunc) error {
	conf := nsq.NewConfig()
	if concurrency < 1 {
		concurrency = 1
	}
	conf.MaxInFlight = concurrency
	// NSQ re-enqueues on its own above this; our envelopes carry their
	// attempt budget, so keep the transport-level limit out of the way.
	conf.MaxAttempts = 0

	consumer, err := nsq.NewConsumer(queue, channel, conf)
	if err != nil {
		return fmt.Errorf("%w: consumer %s/%s: %v", ErrUnavailable, queue, channel, err)
	}
	consumer.AddConcurrentHandlers(nsq.HandlerFunc(func(m *nsq.Message) error {
		m.DisableAutoResponse() // settled explicitly by the worker
		h(&nsqDelivery{m: m})
		return nil
	}), concurrency)

	// Connecting directly to nsqd forces channel creation instead of the
	// channel being lazily created on first publish.
	if err := consumer.ConnectToNSQD(c.nsqdTCPAddr); err != nil {
		return fmt.Errorf("%w: connect nsqd %s: %v", ErrUnavailable, c.nsqdTCPAddr, err)
	}
	if c.lookupHTTPAddr != "" {
		if err := consumer.ConnectToNSQLookupd(c.lookupHTTPAddr); err != nil {
			return fmt.Errorf("%w: connect lookupd %s: %v", ErrUnavailable, c.lookupHTTPAddr, err)
		}
	}
	c.consumers = append(c.consumers, consumer)
	return nil
}

func (c *NSQConsumer) Stop() {
	for _, consumer := range c.consumers {
		consumer.Stop()
	}
	for _, consumer := range c.consumers {
		<-consumer.StopChan
	}
}

type nsqDelivery struct {
	m *nsq.Message
}

func (d *nsqDelivery) Body() []byte { return d.m.Body }

func (d *nsqDelivery) Finish() { d.m.Finish() }

func (d *nsqDelivery) Requeue(delay time.Duration) { d.m.Requeue(delay) }

func (d *nsqDelivery) Drop() { d.m.Finish() }
