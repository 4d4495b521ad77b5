// Package gpio reads the latch limit switches with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "errors"

// Reader reads the logical state of limit switch inputs.
type Reader interface {
	// Read returns true when the switch on pin is asserted.
	Read(pin int) (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Pin definitions (BCM numbering)
const (
	PinOpen1  = 24 // latch 1 open limit
	PinClose1 = 22 // latch 1 close limit
	PinOpen2  = 25 // latch 2 open limit
	PinClose2 = 23 // latch 2 close limit
)

// ErrUnknownPin is returned when reading a pin that was not requested.
var ErrUnknownPin = errors.New("gpio: pin not requested")

// Switch binds a single pin of a Reader so it can be sampled on its own.
type Switch struct {
	Reader Reader
	Pin    int
}

// Read returns the logical state of the switch.
func (s Switch) Read() (bool, error) {
	return s.Reader.Read(s.Pin)
}
