package console

import "sync"

// queue is an unbounded FIFO. push never blocks, so a producer reading a
// terminal keeps reading while the consumer is busy.
type queue[T any] struct {
	mu     sync.Mutex
	items  []T
	done   bool
	signal chan struct{}
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{signal: make(chan struct{}, 1)}
}

func (q *queue[T]) push(item T) {
	q.mu.Lock()
	if q.done {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.wake()
}

func (q *queue[T]) close() {
	q.mu.Lock()
	q.done = true
	q.mu.Unlock()
	q.wake()
}

func (q *queue[T]) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// ready is signalled after a push or close.
func (q *queue[T]) ready() <-chan struct{} {
	return q.signal
}

// drain takes every queued item. open is false once the queue is closed;
// items pushed before the close are still returned.
func (q *queue[T]) drain() (items []T, open bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	items, q.items = q.items, nil
	return items, !q.done
}
