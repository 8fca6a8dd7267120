package telemetry

// CircularBuffer keeps the most recent items up to a fixed capacity.
// Not safe for concurrent use; QueryMetrics guards it with its own mutex.
type CircularBuffer[T any] struct {
	buf   []T
	next  int // oldest item once full
	limit int
}

// NewCircularBuffer creates a buffer holding at most capacity items.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{buf: make([]T, 0, capacity), limit: capacity}
}

// Add appends item, overwriting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	if len(b.buf) < b.limit {
		b.buf = append(b.buf, item)
		return
	}
	b.buf[b.next] = item
	b.next = (b.next + 1) % b.limit
}

// Items returns a copy of the buffered items, oldest first.
func (b *CircularBuffer[T]) Items() []T {
	out := make([]T, 0, len(b.buf))
	out = append(out, b.buf[b.next:]...)
	return append(out, b.buf[:b.next]...)
}

// Size returns the number of buffered items.
func (b *CircularBuffer[T]) Size() int {
	return len(b.buf)
}
