package types

// Queue is a FIFO with head-pop. Migration planning pairs controllers and
// picks switches through a Queue so that selection order is the insertion
// order and nothing else.
type Queue[T any] struct {
	items []T
	head  int
}

// NewQueue returns a queue holding items in the given order.
func NewQueue[T any](items ...T) *Queue[T] {
	q := &Queue[T]{items: make([]T, 0, len(items))}
	q.items = append(q.items, items...)
	return q
}

// Push appends v at the tail.
func (q *Queue[T]) Push(v T) {
	q.items = append(q.items, v)
}

// Pop removes and returns the head. ok is false when the queue is empty.
func (q *Queue[T]) Pop() (v T, ok bool) {
	if q.head >= len(q.items) {
		return v, false
	}
	v = q.items[q.head]
	var zero T
	q.items[q.head] = zero
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return v, true
}

// Peek returns the head without removing it.
func (q *Queue[T]) Peek() (v T, ok bool) {
	if q.head >= len(q.items) {
		return v, false
	}
	return q.items[q.head], true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return len(q.items) - q.head
}

// Items returns the queued items, head first, as a new slice.
func (q *Queue[T]) Items() []T {
	out := make([]T, q.Len())
	copy(out, q.items[q.head:])
	return out
}
