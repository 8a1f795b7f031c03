// File: internal/ring/ring.go
package ring

// Ring is a fixed-capacity FIFO buffer. Pushing onto a full ring evicts the
// oldest element. The zero value is unusable; call New. Not safe for
// concurrent use.
type Ring[T any] struct {
	buf   []T
	start int
	size  int
	total int
}

// New returns an empty ring holding at most capacity elements. Capacities
// below one are raised to one.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when full. It reports whether
// an element was evicted.
func (r *Ring[T]) Push(v T) bool {
	r.total++
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return false
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
	return true
}

// Len is the number of elements held.
func (r *Ring[T]) Len() int { return r.size }

// Cap is the maximum number of elements held.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Total counts every Push since creation, including evicted elements.
func (r *Ring[T]) Total() int { return r.total }

// At returns the i-th element, oldest first.
func (r *Ring[T]) At(i int) (T, bool) {
	var zero T
	if i < 0 || i >= r.size {
		return zero, false
	}
	return r.buf[(r.start+i)%len(r.buf)], true
}

// Items copies the contents, oldest first.
func (r *Ring[T]) Items() []T {
	out := make([]T, r.size)
	for i := range out {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Last copies up to n of the newest elements, oldest first.
func (r *Ring[T]) Last(n int) []T {
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	offset := r.size - n
	for i := range out {
		out[i] = r.buf[(r.start+offset+i)%len(r.buf)]
	}
	return out
}

// Reset drops every element but keeps the running total.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.start, r.size = 0, 0
}
