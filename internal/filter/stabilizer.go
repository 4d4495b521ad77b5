package filter

import (
	"sort"
	"sync"
)

// Aggregate reduces the window contents (oldest first) to a single value.
// ok is false when no value can be derived.
type Aggregate[T, R any] func(values []T) (result R, ok bool)

// Stabilizer applies an Aggregate to a bounded window of raw samples.
// It is safe for concurrent use: one goroutine may Push while others read Value.
type Stabilizer[T, R any] struct {
	mu     sync.Mutex
	window *Window[T]
	agg    Aggregate[T, R]
}

// New creates a Stabilizer over a window of the given capacity.
func New[T, R any](capacity int, agg Aggregate[T, R]) *Stabilizer[T, R] {
	return &Stabilizer[T, R]{
		window: NewWindow[T](capacity),
		agg:    agg,
	}
}

// NewMajority creates a boolean majority-vote stabilizer.
func NewMajority(capacity int) *Stabilizer[bool, bool] {
	return New[bool, bool](capacity, Majority)
}

// NewMedian creates a rolling-median stabilizer.
func NewMedian(capacity int) *Stabilizer[float64, float64] {
	return New[float64, float64](capacity, Median)
}

// Push appends a raw sample, evicting the oldest on overflow.
func (s *Stabilizer[T, R]) Push(v T) {
	s.mu.Lock()
	s.window.Push(v)
	s.mu.Unlock()
}

// Value recomputes the stabilized value from the current window.
func (s *Stabilizer[T, R]) Value() (R, bool) {
	s.mu.Lock()
	values := s.window.Values()
	s.mu.Unlock()
	return s.agg(values)
}

// Len returns the number of samples in the window.
func (s *Stabilizer[T, R]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window.Len()
}

// Majority is true iff at least half of the values are true.
// Ties resolve to true; an empty window yields (false, false).
func Majority(values []bool) (bool, bool) {
	if len(values) == 0 {
		return false, false
	}
	trueCount := 0
	for _, v := range values {
		if v {
			trueCount++
		}
	}
	return trueCount >= len(values)-trueCount, true
}

// Median returns the median of values. With an even count it is the mean of
// the two middle values. An empty window yields (0, false).
func Median(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2, true
	}
	return sorted[mid], true
}
