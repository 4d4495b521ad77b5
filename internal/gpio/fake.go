package gpio

import (
	"errors"
	"fmt"
	"sync"
)

// FakeReader is a test double that returns scripted per-pin values.
// It is safe for concurrent use.
type FakeReader struct {
	mu sync.Mutex

	// samples holds the scripted values for each pin. Each Read consumes
	// the next value; the last value repeats once the script is exhausted.
	samples map[int][]bool
	index   map[int]int
	reads   map[int]int
	errs    map[int]error
	closed  bool
}

// NewFakeReader creates a FakeReader with no pins configured.
func NewFakeReader() *FakeReader {
	return &FakeReader{
		samples: make(map[int][]bool),
		index:   make(map[int]int),
		reads:   make(map[int]int),
		errs:    make(map[int]error),
	}
}

// Script replaces the values returned for pin and rewinds it.
func (f *FakeReader) Script(pin int, values ...bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples[pin] = append([]bool(nil), values...)
	f.index[pin] = 0
}

// Set makes pin return v on every subsequent read.
func (f *FakeReader) Set(pin int, v bool) {
	f.Script(pin, v)
}

// SetError makes reads of pin fail with err. A nil err clears the failure.
func (f *FakeReader) SetError(pin int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, pin)
		return
	}
	f.errs[pin] = err
}

// Read returns the next scripted value for pin.
func (f *FakeReader) Read(pin int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false, errors.New("gpio: reader closed")
	}
	f.reads[pin]++
	if err, ok := f.errs[pin]; ok {
		return false, err
	}

	values, ok := f.samples[pin]
	if !ok || len(values) == 0 {
		return false, fmt.Errorf("%w: %d", ErrUnknownPin, pin)
	}

	i := f.index[pin]
	if i < len(values)-1 {
		f.index[pin] = i + 1
	}
	return values[i], nil
}

// Reads returns how many times pin has been read.
func (f *FakeReader) Reads(pin int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[pin]
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close was called.
func (f *FakeReader) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
