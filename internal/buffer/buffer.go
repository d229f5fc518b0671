// Package buffer provides the unbounded-ish queue between the feed core and
// the history recorder: accepted updates are enqueued without ever blocking
// a polling loop, and the recorder drains at its own pace.
package buffer

import "sync"

// Queue is a thread-safe ring buffer that doubles its capacity instead of
// blocking producers.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	head   int
	tail   int
	count  int
	closed bool

	enqueued int64
	dequeued int64
	resizes  int
}

// NewQueue creates a queue with the given initial capacity.
func NewQueue[T any](initialCapacity int) *Queue[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	q := &Queue[T]{items: make([]T, initialCapacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push adds an item, growing the ring when full. Returns false after Close.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if q.count == len(q.items) {
		q.grow()
	}

	q.items[q.tail] = item
	q.tail = (q.tail + 1) % len(q.items)
	q.count++
	q.enqueued++

	q.cond.Signal()
	return true
}

// Pop removes the oldest item, blocking until one is available or the queue
// is closed. The second return is false only when closed and drained.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

// TryPop removes the oldest item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

func (q *Queue[T]) popLocked() T {
	item := q.items[q.head]
	var zero T
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.count--
	q.dequeued++
	return item
}

// Close stops accepting items. Consumers drain the remainder, then Pop
// reports closed.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Stats describes queue throughput.
type Stats struct {
	Len      int
	Capacity int
	Enqueued int64
	Dequeued int64
	Resizes  int
}

// Stats returns point-in-time queue counters.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Len:      q.count,
		Capacity: len(q.items),
		Enqueued: q.enqueued,
		Dequeued: q.dequeued,
		Resizes:  q.resizes,
	}
}

// grow doubles capacity, unwrapping the ring. Caller holds the lock.
func (q *Queue[T]) grow() {
	next := make([]T, len(q.items)*2)
	if q.head < q.tail {
		copy(next, q.items[q.head:q.tail])
	} else if q.count > 0 {
		n := copy(next, q.items[q.head:])
		copy(next[n:], q.items[:q.tail])
	}
	q.items = next
	q.head = 0
	q.tail = q.count
	q.resizes++
}
