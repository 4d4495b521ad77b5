package sensor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sweeney/delivery-sensor/internal/filter"
)

func counter() (Source[float64], *atomic.Int64) {
	var n atomic.Int64
	return SourceFunc[float64](func() (float64, error) {
		return float64(n.Add(1)), nil
	}), &n
}

func TestLatestBeforeFirstRead(t *testing.T) {
	src, _ := counter()
	s := NewSampler[float64]("distance", src, time.Second)

	_, ok := s.Latest()
	assert.False(t, ok)
}

func TestPollStoresReading(t *testing.T) {
	src, _ := counter()
	s := NewSampler[float64]("distance", src, time.Second)

	s.Poll()
	s.Poll()

	v, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
	assert.Equal(t, uint64(2), s.Samples())
}

func TestFailedReadKeepsPreviousValue(t *testing.T) {
	fail := false
	src := SourceFunc[float64](func() (float64, error) {
		if fail {
			return 0, errors.New("bus error")
		}
		return 21.5, nil
	})
	s := NewSampler[float64]("temperature", src, time.Second)

	s.Poll()
	fail = true
	s.Poll()
	s.Poll()

	v, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, 21.5, v)
	assert.Equal(t, uint64(1), s.Samples())
	assert.Equal(t, uint64(2), s.Errors())
}

func TestFailingSourceNeverReportsValue(t *testing.T) {
	src := SourceFunc[bool](func() (bool, error) {
		return false, errors.New("not wired")
	})
	s := NewSampler[bool]("limit", src, time.Second)
	s.Poll()

	_, ok := s.Latest()
	assert.False(t, ok)
}

func TestOnSampleFeedsStabilizer(t *testing.T) {
	readings := []float64{100, 300, 200}
	i := 0
	src := SourceFunc[float64](func() (float64, error) {
		v := readings[i%len(readings)]
		i++
		return v, nil
	})

	median := filter.NewMedian(40)
	s := NewSampler[float64]("distance", src, time.Second, WithOnSample(func(v float64) {
		median.Push(v)
	}))
	for range readings {
		s.Poll()
	}

	got, ok := median.Value()
	require.True(t, ok)
	assert.Equal(t, 200.0, got)

	raw, _ := s.Latest()
	assert.Equal(t, 200.0, raw)
}

func TestRunSamplesUntilCancelled(t *testing.T) {
	src, n := counter()
	s := NewSampler[float64]("distance", src, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return n.Load() >= 5 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunReadsImmediately(t *testing.T) {
	src, n := counter()
	s := NewSampler[float64]("temperature", src, time.Hour)

	go s.Run(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, time.Millisecond)
}

func TestStopIsIdempotent(t *testing.T) {
	src, _ := counter()
	s := NewSampler[float64]("distance", src, time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	s.Stop()
	s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestConcurrentLatest(t *testing.T) {
	src, _ := counter()
	s := NewSampler[float64]("distance", src, time.Millisecond)
	go s.Run(context.Background())
	defer s.Stop()

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := 0.0
			for i := 0; i < 200; i++ {
				if v, ok := s.Latest(); ok {
					if v < last {
						t.Errorf("reading went backwards: %v after %v", v, last)
						return
					}
					last = v
				}
			}
		}()
	}
	wg.Wait()
}
