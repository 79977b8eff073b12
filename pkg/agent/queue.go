package agent

import "sync"

// fifo is an unbounded queue with a wake channel so the control loop can
// block on new work instead of polling hot.
type fifo[T any] struct {
	mu    sync.Mutex
	items []T
	wake  chan struct{}
}

func newFIFO[T any]() *fifo[T] {
	return &fifo[T]{wake: make(chan struct{}, 1)}
}

// Push appends an item and nudges the wake channel.
func (q *fifo[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pop removes the oldest item.
func (q *fifo[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero // release the reference
	q.items = q.items[1:]
	return item, true
}

// PopTail removes the newest item. The load balancer steals from the back
// so the task an agent is about to pick up next stays put.
func (q *fifo[T]) PopTail() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	last := len(q.items) - 1
	item := q.items[last]
	q.items[last] = zero // release the reference
	q.items = q.items[:last]
	return item, true
}

func (q *fifo[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Wake signals when items may be available. One signal can cover several
// pushes; consumers drain until Pop reports empty.
func (q *fifo[T]) Wake() <-chan struct{} {
	return q.wake
}
