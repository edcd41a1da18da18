package engine

import "sync"

// queue is an unbounded FIFO. Push never blocks; consumers wait on Wake.
type queue[T any] struct {
	mu    sync.Mutex
	items []T
	wake  chan struct{}
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{
		wake: make(chan struct{}, 1),
	}
}

func (q *queue[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *queue[T]) Wake() <-chan struct{} {
	return q.wake
}

// Drain removes and returns everything queued so far.
func (q *queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	var items = q.items
	q.items = nil
	return items
}

func (q *queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
