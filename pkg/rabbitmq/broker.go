package rabbitmq

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Broker is what the service needs from a message queue.
type Broker interface {
	PublishJSON(queue string, payload any) error
	Consume(queue string, handler func(body []byte) error) (<-chan struct{}, error)
	Close() error
}

var _ Broker = (*Client)(nil)
var _ Broker = (*InProcess)(nil)

// ErrClosed is returned when publishing to a closed InProcess broker.
var ErrClosed = errors.New("broker closed")

// InProcess is a Broker backed by buffered Go channels, used when no RabbitMQ URL is
// configured and in tests. Messages are lost on restart.
type InProcess struct {
	mu     sync.Mutex
	queues map[string]chan []byte
	size   int
	closed bool
}

// NewInProcess returns a broker whose queues buffer up to size messages.
func NewInProcess(size int) *InProcess {
	if size <= 0 {
		size = 64
	}
	return &InProcess{queues: make(map[string]chan []byte), size: size}
}

func (b *InProcess) queue(name string) chan []byte {
	q, ok := b.queues[name]
	if !ok {
		q = make(chan []byte, b.size)
		b.queues[name] = q
	}
	return q
}

// PublishJSON marshals payload and enqueues it; it fails when the queue buffer is full.
func (b *InProcess) PublishJSON(queue string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message for %s: %w", queue, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	select {
	case b.queue(queue) <- body:
		return nil
	default:
		return fmt.Errorf("queue %s is full", queue)
	}
}

// Consume drains queue in a goroutine until Close. Handler errors drop the message.
func (b *InProcess) Consume(queue string, handler func(body []byte) error) (<-chan struct{}, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	q := b.queue(queue)
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for body := range q {
			_ = handler(body)
		}
	}()
	return done, nil
}

// Close stops every consumer once the buffered messages are drained.
func (b *InProcess) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, q := range b.queues {
		close(q)
	}
	return nil
}
