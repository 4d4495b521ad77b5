// Package filter provides bounded sliding windows and the aggregates used to
// turn noisy raw samples into stable signals.
package filter

// Window is a fixed-capacity FIFO of the most recent values.
// Not safe for concurrent use; the caller must synchronize.
type Window[T any] struct {
	buf      []T
	capacity int
	head     int // next write position
	count    int
	overflow bool // true if any value was evicted since last drain
}

// NewWindow creates a Window holding at most capacity values.
// A capacity below 1 is treated as 1.
func NewWindow[T any](capacity int) *Window[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Window[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends v, evicting the oldest value when the window is full.
// It reports whether a value was evicted.
func (w *Window[T]) Push(v T) bool {
	if w.count == w.capacity {
		// Overwrite oldest: head is already pointing at it
		w.buf[w.head] = v
		w.head = (w.head + 1) % w.capacity
		w.overflow = true
		return true
	}
	w.buf[w.head] = v
	w.head = (w.head + 1) % w.capacity
	w.count++
	return false
}

// Values returns a copy of the window contents, oldest first.
func (w *Window[T]) Values() []T {
	if w.count == 0 {
		return nil
	}

	result := make([]T, w.count)
	// Oldest item is at (head - count) mod capacity
	start := (w.head - w.count + w.capacity) % w.capacity
	for i := 0; i < w.count; i++ {
		result[i] = w.buf[(start+i)%w.capacity]
	}
	return result
}

// Drain returns the contents oldest first and empties the window.
func (w *Window[T]) Drain() []T {
	result := w.Values()
	var zero T
	for i := range w.buf {
		w.buf[i] = zero
	}
	w.count = 0
	w.head = 0
	w.overflow = false
	return result
}

// Overflowed reports whether a value was evicted since the last Drain.
func (w *Window[T]) Overflowed() bool {
	return w.overflow
}

// Len returns the number of values held.
func (w *Window[T]) Len() int {
	return w.count
}

// Cap returns the window capacity.
func (w *Window[T]) Cap() int {
	return w.capacity
}
