package runtime

import (
	"context"
	"errors"
	"sync"
)

var errQueueClosed = errors.New("queue closed")

// queue is an unbounded FIFO with a single consumer. Producers never
// block; the consumer can poll with tryPop or wait with pop.
type queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	notify chan struct{}
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{notify: make(chan struct{}, 1)}
}

// push appends v and reports false when the queue is closed
func (q *queue[T]) push(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.wake()
	return true
}

// close stops further pushes; queued items stay poppable
func (q *queue[T]) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

// discard closes the queue, drops anything still queued and returns how
// many items were dropped
func (q *queue[T]) discard() int {
	q.mu.Lock()
	n := len(q.items)
	q.items = nil
	q.closed = true
	q.mu.Unlock()
	q.wake()
	return n
}

func (q *queue[T]) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// tryPop returns the next item without waiting. closed is set once the
// queue is closed and drained.
func (q *queue[T]) tryPop() (v T, ok bool, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) > 0 {
		v = q.items[0]
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		return v, true, false
	}
	return v, false, q.closed
}

// pop waits for the next item. It returns errQueueClosed once the queue
// is closed and drained.
func (q *queue[T]) pop(ctx context.Context) (T, error) {
	for {
		v, ok, closed := q.tryPop()
		if ok {
			return v, nil
		}
		if closed {
			return v, errQueueClosed
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			return v, ctx.Err()
		}
	}
}
