// Package queue provides the bounded FIFO that carries work from the engine
// goroutine to a sender goroutine.
package queue

// Queue is a fixed-capacity FIFO safe for one producer and one consumer.
// Neither TryPush nor TryPop ever blocks.
type Queue[T any] struct {
	ch chan T
}

// New returns an empty queue holding at most capacity items. A capacity
// below one is raised to one.
func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// TryPush appends v and reports whether there was room for it.
func (q *Queue[T]) TryPush(v T) bool {
	select {
	case q.ch <- v:
		return true
	default:
		return false
	}
}

// TryPop removes and returns the oldest item, if any.
func (q *Queue[T]) TryPop() (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Len is the number of queued items at the time of the call.
func (q *Queue[T]) Len() int { return len(q.ch) }

// Cap is the fixed capacity.
func (q *Queue[T]) Cap() int { return cap(q.ch) }
