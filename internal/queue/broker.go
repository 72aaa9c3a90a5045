package queue

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// Delivery is one message pulled from a queue. Exactly one of Ack or Nack
// must be called; Nack with requeue redelivers the message.
type Delivery struct {
	Body []byte
	Ack  func() error
	Nack func(requeue bool) error
}

// Broker is the transport under the job queue. Implementations provide
// at-least-once delivery of serialized envelopes.
type Broker interface {
	Publish(ctx context.Context, queueName string, body []byte) error
	Consume(ctx context.Context, queueName string) (<-chan Delivery, error)
	Close() error
}

// MemBroker is an in-process Broker used by tests and handler development.
// Nacked messages with requeue are redelivered to the same channel.
type MemBroker struct {
	mu     sync.Mutex
	queues map[string]chan []byte
	closed bool
}

// NewMemBroker creates an empty in-memory broker.
func NewMemBroker() *MemBroker {
	return &MemBroker{queues: make(map[string]chan []byte)}
}

func (b *MemBroker) queue(name string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		q = make(chan []byte, 256)
		b.queues[name] = q
	}
	return q
}

// Publish places body on the named queue.
func (b *MemBroker) Publish(ctx context.Context, queueName string, body []byte) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return eris.New("membroker: closed")
	}
	select {
	case b.queue(queueName) <- body:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "membroker: publish")
	}
}

// Consume returns a channel of deliveries for the named queue. The channel
// closes when ctx is done.
func (b *MemBroker) Consume(ctx context.Context, queueName string) (<-chan Delivery, error) {
	q := b.queue(queueName)
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case body, ok := <-q:
				if !ok {
					return
				}
				d := Delivery{
					Body: body,
					Ack:  func() error { return nil },
					Nack: func(requeue bool) error {
						if requeue {
							return b.Publish(context.Background(), queueName, body)
						}
						return nil
					},
				}
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Len reports the number of undelivered messages on a queue.
func (b *MemBroker) Len(queueName string) int {
	return len(b.queue(queueName))
}

// Close marks the broker closed; subsequent publishes fail.
func (b *MemBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
