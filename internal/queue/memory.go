package queue

import (
	"context"
	"fmt"
	"sync"
)

// MemoryQueue is a channel-backed ReminderQueue for single-node runs where
// no broker is configured.
type MemoryQueue struct {
	mu     sync.Mutex
	events chan *ReminderEvent
	closed bool
}

// NewMemoryQueue creates an in-memory reminder queue.
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 64
	}
	return &MemoryQueue{
		events: make(chan *ReminderEvent, buffer),
	}
}

// Publish enqueues an event, dropping it when the buffer is full. A missed
// reminder beats a blocked scanner.
func (q *MemoryQueue) Publish(_ context.Context, event *ReminderEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("queue closed")
	}
	select {
	case q.events <- event:
		return nil
	default:
		return fmt.Errorf("reminder queue full, event dropped")
	}
}

// Consume returns the shared event channel.
func (q *MemoryQueue) Consume(ctx context.Context) (<-chan *ReminderEvent, <-chan error, error) {
	out := make(chan *ReminderEvent)
	errChan := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errChan)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-q.events:
				if !ok {
					return
				}
				select {
				case <-ctx.Done():
					return
				case out <- event:
				}
			}
		}
	}()

	return out, errChan, nil
}

// Close shuts the queue down.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.events)
	}
	return nil
}
