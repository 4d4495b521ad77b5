package sensor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// VL53L0XAddr is the sensor's default 7-bit I2C address.
const VL53L0XAddr = 0x29

const (
	regSysRangeStart     = 0x00
	regInterruptClear    = 0x0B
	regResultRangeStatus = 0x14
	regResultRange       = regResultRangeStatus + 10
	regModelID           = 0xC0

	startSingleShot = 0x01
	statusReadyMask = 0x07
)

var validModelIDs = map[byte]bool{0xEE: true, 0xCC: true, 0xAA: true}

// ErrTimeout is returned when a range measurement does not complete in time.
var ErrTimeout = errors.New("sensor: measurement timeout")

// VL53L0X is a time-of-flight ranging sensor. Each Read collects the
// measurement started by the previous one and starts the next.
type VL53L0X struct {
	mu      sync.Mutex
	dev     *i2c.Dev
	closer  i2c.BusCloser
	timeout time.Duration
}

// OpenVL53L0X initialises the host drivers, opens the named I2C bus ("" for
// the first available) and verifies the sensor responds at addr.
func OpenVL53L0X(bus string, addr uint16) (*VL53L0X, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	b, err := i2creg.Open(bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", bus, err)
	}

	d := NewVL53L0X(b, addr)
	d.closer = b
	if err := d.Init(); err != nil {
		b.Close()
		return nil, err
	}
	return d, nil
}

// NewVL53L0X binds a sensor on an already open bus. Call Init before Read.
func NewVL53L0X(bus i2c.Bus, addr uint16) *VL53L0X {
	if addr == 0 {
		addr = VL53L0XAddr
	}
	return &VL53L0X{
		dev:     &i2c.Dev{Bus: bus, Addr: addr},
		timeout: 100 * time.Millisecond,
	}
}

// Init checks the model id and starts the first measurement.
func (d *VL53L0X) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, err := d.readReg(regModelID)
	if err != nil {
		return fmt.Errorf("read model id: %w", err)
	}
	if !validModelIDs[id] {
		return fmt.Errorf("%w: unexpected VL53L0X model id %#02x", ErrNoDevice, id)
	}
	return d.writeReg(regSysRangeStart, startSingleShot)
}

// Read waits for the pending measurement and returns the range in millimetres.
func (d *VL53L0X) Read() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	deadline := time.Now().Add(d.timeout)
	for {
		status, err := d.readReg(regResultRangeStatus)
		if err != nil {
			return 0, fmt.Errorf("read range status: %w", err)
		}
		if status&statusReadyMask != 0 {
			break
		}
		if time.Now().After(deadline) {
			// Restart so the next Read has a fresh measurement to wait for.
			if err := d.writeReg(regSysRangeStart, startSingleShot); err != nil {
				return 0, errors.Join(ErrTimeout, fmt.Errorf("restart ranging: %w", err))
			}
			return 0, ErrTimeout
		}
		time.Sleep(time.Millisecond)
	}

	hi, err := d.readReg(regResultRange)
	if err != nil {
		return 0, fmt.Errorf("read range: %w", err)
	}
	lo, err := d.readReg(regResultRange + 1)
	if err != nil {
		return 0, fmt.Errorf("read range: %w", err)
	}
	mm := uint16(hi)<<8 | uint16(lo)

	if err := d.writeReg(regInterruptClear, 0x01); err != nil {
		return 0, fmt.Errorf("clear interrupt: %w", err)
	}
	if err := d.writeReg(regSysRangeStart, startSingleShot); err != nil {
		return 0, fmt.Errorf("start measurement: %w", err)
	}
	return float64(mm), nil
}

// Close releases the bus if it was opened by OpenVL53L0X.
func (d *VL53L0X) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

func (d *VL53L0X) readReg(reg byte) (byte, error) {
	var b [1]byte
	if err := d.dev.Tx([]byte{reg}, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *VL53L0X) writeReg(reg, v byte) error {
	return d.dev.Tx([]byte{reg, v}, nil)
}
