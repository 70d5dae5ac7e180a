package bus

import (
	"context"
	"sync/atomic"

	"github.com/yanun0323/errors"

	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

var ErrQueueClosed = errors.New("order event queue closed")

// Queue is a bounded, non-blocking order event queue. Publishing never
// blocks the engine's critical sections; full queues drop with an error.
type Queue struct {
	ch     chan schema.OrderEvent
	closed uint32
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan schema.OrderEvent, capacity)}
}

// TryPublish enqueues an event without blocking.
func (q *Queue) TryPublish(e schema.OrderEvent) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		return exception.ErrEventQueueFull
	}
}

// Close stops the queue from accepting new events.
func (q *Queue) Close() {
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// Run consumes events until the context is done or the queue is closed.
func (q *Queue) Run(ctx context.Context, handler func(schema.OrderEvent)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-q.ch:
			if !ok {
				return
			}
			handler(e)
		}
	}
}
