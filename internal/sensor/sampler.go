// Package sensor samples hardware inputs on independent schedules and holds
// the most recent good reading of each for the control loop.
package sensor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrNoDevice is returned when a sensor cannot be found on its bus.
var ErrNoDevice = errors.New("sensor: device not found")

// Source produces one raw reading per call.
type Source[T any] interface {
	Read() (T, error)
}

// SourceFunc adapts an ordinary function to a Source.
type SourceFunc[T any] func() (T, error)

// Read calls f.
func (f SourceFunc[T]) Read() (T, error) {
	return f()
}

// Option configures a Sampler.
type Option[T any] func(*Sampler[T])

// WithOnSample registers a hook that receives every successful reading on the
// sampling goroutine. It is typically used to feed a stabilizer.
func WithOnSample[T any](fn func(T)) Option[T] {
	return func(s *Sampler[T]) {
		s.onSample = fn
	}
}

// WithLogger sets the logger used for read failures.
func WithLogger[T any](log *zap.Logger) Option[T] {
	return func(s *Sampler[T]) {
		s.log = log
	}
}

// Sampler polls a Source at a fixed interval. The latest good reading is
// held in a single-slot cell that readers load without blocking the sampler.
// A failed read keeps the previous value.
type Sampler[T any] struct {
	source   Source[T]
	interval time.Duration
	log      *zap.Logger
	onSample func(T)

	latest  atomic.Pointer[T]
	samples atomic.Uint64
	errors  atomic.Uint64

	stop     chan struct{}
	stopOnce sync.Once
}

// NewSampler creates a sampler that reads src every interval once started.
func NewSampler[T any](name string, src Source[T], interval time.Duration, opts ...Option[T]) *Sampler[T] {
	s := &Sampler[T]{
		source:   src,
		interval: interval,
		log:      zap.NewNop(),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval <= 0 {
		s.interval = time.Second
	}
	s.log = s.log.With(zap.String("sensor", name))
	return s
}

// Run samples immediately and then on every interval until ctx is done or
// Stop is called. It always returns nil.
func (s *Sampler[T]) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.Poll()

		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		case <-ticker.C:
		}
	}
}

// Poll performs one read. Run calls it on every tick; it is exported for
// callers that drive sampling themselves.
func (s *Sampler[T]) Poll() {
	v, err := s.source.Read()
	if err != nil {
		s.errors.Add(1)
		s.log.Error("read failed", zap.Error(err))
		return
	}

	s.samples.Add(1)
	s.latest.Store(&v)
	if s.onSample != nil {
		s.onSample(v)
	}
}

// Latest returns the most recent good reading. ok is false until the first
// successful read.
func (s *Sampler[T]) Latest() (v T, ok bool) {
	p := s.latest.Load()
	if p == nil {
		return v, false
	}
	return *p, true
}

// Samples returns the number of successful reads.
func (s *Sampler[T]) Samples() uint64 {
	return s.samples.Load()
}

// Errors returns the number of failed reads.
func (s *Sampler[T]) Errors() uint64 {
	return s.errors.Load()
}

// Stop ends Run. It is safe to call more than once.
func (s *Sampler[T]) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}
