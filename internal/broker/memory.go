package broker

import (
	"context"
	"sync"
	"time"

	"github.com/Ken-Obieze/travel-tasks/internal/task"
)

// Memory is an in-process broker used by tests and local wiring. It keeps
// the transport contract of the NSQ implementation: at-most-one consumer
// per message, explicit settle, requeue with delay.
type Memory struct {
	mu       sync.Mutex
	queues   map[string]chan []byte
	stop     chan struct{}
	wg       sync.WaitGroup
	closed   bool
	finished int
	dropped  int
	requeued int
}

func NewMemory() *Memory {
	return &Memory{
		queues: make(map[string]chan []byte),
		stop:   make(chan struct{}),
	}
}

func (b *Memory) queue(name string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.queues[name]
	if !ok {
		ch = make(chan []byte, 1024)
		b.queues[name] = ch
	}
	return ch
}

func (b *Memory) Enqueue(ctx context.Context, env task.Envelope) error {
	return b.EnqueueAfter(ctx, env, 0)
}

func (b *Memory) EnqueueAfter(ctx context.Context, env task.Envelope, delay time.Duration) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.mu.Unlock()

	body, err := env.Encode()
	if err != nil {
		return err
	}
	ch := b.queue(env.Queue)
	if delay <= 0 {
		ch <- body
		return nil
	}
	time.AfterFunc(delay, func() { ch <- body })
	return nil
}

func (b *Memory) PublishRaw(ctx context.Context, queue string, body []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.mu.Unlock()
	b.queue(queue) <- body
	return nil
}

func (b *Memory) Consume(queue, channel string, concurrency int, h HandlerFunc) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.mu.Unlock()

	if concurrency < 1 {
		concurrency = 1
	}
	ch := b.queue(queue)
	for i := 0; i < concurrency; i++ {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			for {
				select {
				case <-b.stop:
					return
				case body := <-ch:
					h(&memoryDelivery{broker: b, queue: queue, body: body})
				}
			}
		}()
	}
	return nil
}

func (b *Memory) Stop() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	close(b.stop)
	b.wg.Wait()
}

// Depth returns the number of messages waiting on a queue.
func (b *Memory) Depth(queue string) int {
	return len(b.queue(queue))
}

// Finished returns the total number of acknowledged deliveries.
func (b *Memory) Finished() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finished
}

// Dropped returns the total number of deliveries rejected without requeue.
func (b *Memory) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Requeued returns the total number of requeued deliveries.
func (b *Memory) Requeued() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requeued
}

type memoryDelivery struct {
	broker  *Memory
	queue   string
	body    []byte
	settled bool
}

func (d *memoryDelivery) Body() []byte { return d.body }

func (d *memoryDelivery) Finish() {
	if d.settled {
		return
	}
	d.settled = true
	d.broker.mu.Lock()
	d.broker.finished++
	d.broker.mu.Unlock()
}

func (d *memoryDelivery) Requeue(delay time.Duration) {
	if d.settled {
		return
	}
	d.settled = true
	d.broker.mu.Lock()
	d.broker.requeued++
	d.broker.mu.Unlock()
	ch := d.broker.queue(d.queue)
	if delay <= 0 {
		ch <- d.body
		return
	}
	time.AfterFunc(delay, func() { ch <- d.body })
}

func (d *memoryDelivery) Drop() {
	if d.settled {
		return
	}
	d.settled = true
	d.broker.mu.Lock()
	d.broker.dropped++
	d.broker.mu.Unlock()
}
