//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "delivery-sensor"

// RealReader reads limit switches from actual hardware using the Linux GPIO
// character device.
type RealReader struct {
	mu     sync.Mutex
	chip   *gpiocdev.Chip
	lines  map[int]*gpiocdev.Line
	invert bool
}

// NewRealReader requests every pin on chip as an input with pull-down.
// With invert set, a raw low level reads as asserted.
func NewRealReader(chipName string, pins []int, invert bool) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	r := &RealReader{
		chip:   chip,
		lines:  make(map[int]*gpiocdev.Line, len(pins)),
		invert: invert,
	}
	for _, pin := range pins {
		if _, ok := r.lines[pin]; ok {
			continue
		}
		line, err := chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullDown)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request pin %d: %w", pin, err)
		}
		r.lines[pin] = line
	}
	return r, nil
}

// Read returns the logical state of pin.
func (r *RealReader) Read(pin int) (bool, error) {
	r.mu.Lock()
	line, ok := r.lines[pin]
	r.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrUnknownPin, pin)
	}

	raw, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", pin, err)
	}
	if r.invert {
		return raw == 0, nil
	}
	return raw == 1, nil
}

// Close releases GPIO resources.
// Lines are reconfigured to input with pull-down (the Pi boot default)
// before being released so external switch wiring sees a known state.
func (r *RealReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for pin, line := range r.lines {
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", pin, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
		delete(r.lines, pin)
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		r.chip = nil
	}
	return errors.Join(errs...)
}
