package engine

import "sync"

// Queue is a mutex-guarded FIFO shared between producers on other goroutines
// and the frame loop.
type Queue[T any] struct {
	mu      sync.Mutex
	pending []T
}

func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		pending: make([]T, 0),
	}
}

func (q *Queue[T]) Enqueue(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, item)
}

// Drain removes up to max items in arrival order. A non-positive max drains
// everything.
func (q *Queue[T]) Drain(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	if max <= 0 || max >= len(q.pending) {
		batch := q.pending
		q.pending = nil
		return batch
	}
	batch := append([]T(nil), q.pending[:max]...)
	q.pending = append([]T(nil), q.pending[max:]...)
	return batch
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
