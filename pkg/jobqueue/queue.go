// Package jobqueue provides a joinable FIFO work queue for a fixed pool of
// workers that stop when the queue runs dry.
package jobqueue

import "sync"

// Queue is a concurrency-safe FIFO with a counting completion gate: every
// Enqueue must eventually be matched by a Done, and Join blocks until then.
// Dequeue hands each item to exactly one caller.
type Queue[T any] struct {
	mu          sync.Mutex
	drained     *sync.Cond
	items       []T
	outstanding int
}

func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.drained = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds one item and raises the completion gate by one.
func (q *Queue[T]) Enqueue(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.outstanding++
	q.mu.Unlock()
}

// TryDequeue pops the oldest item, or reports false when the queue is empty.
// An empty queue is the workers' stop signal, so there is no blocking variant.
func (q *Queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return v, true
}

// Done acknowledges one dequeued item. Calling it more times than Enqueue
// panics; the accounting bug would otherwise release Join early.
func (q *Queue[T]) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.outstanding == 0 {
		panic("jobqueue: Done called more times than Enqueue")
	}
	q.outstanding--
	if q.outstanding == 0 {
		q.drained.Broadcast()
	}
}

// Join blocks until every enqueued item has been acknowledged with Done,
// not merely dequeued.
func (q *Queue[T]) Join() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.outstanding > 0 {
		q.drained.Wait()
	}
}

// Outstanding is the number of enqueued items not yet acknowledged.
func (q *Queue[T]) Outstanding() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.outstanding
}

// Len is the number of items waiting to be dequeued.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
