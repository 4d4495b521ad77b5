package sensor

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
)

// fakeBus emulates the VL53L0X register file.
type fakeBus struct {
	mu      sync.Mutex
	addr    uint16
	regs    map[byte]byte
	writes  map[byte][]byte
	failTx  error
	failW   error // fails register writes only
	pending int   // status polls before the measurement reports ready
}

func newFakeBus(modelID byte, rangeMM uint16) *fakeBus {
	return &fakeBus{
		addr: VL53L0XAddr,
		regs: map[byte]byte{
			regModelID:           modelID,
			regResultRangeStatus: 0x01,
			regResultRange:       byte(rangeMM >> 8),
			regResultRange + 1:   byte(rangeMM),
		},
		writes: make(map[byte][]byte),
	}
}

func (b *fakeBus) String() string                  { return "fake" }
func (b *fakeBus) SetSpeed(f physic.Frequency) error { return nil }

func (b *fakeBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failTx != nil {
		return b.failTx
	}
	if addr != b.addr {
		return errors.New("nack")
	}
	if len(w) == 2 {
		if b.failW != nil {
			return b.failW
		}
		b.writes[w[0]] = append(b.writes[w[0]], w[1])
		return nil
	}
	reg := w[0]
	if reg == regResultRangeStatus && b.pending > 0 {
		b.pending--
		r[0] = 0
		return nil
	}
	for i := range r {
		r[i] = b.regs[reg+byte(i)]
	}
	return nil
}

func TestVL53L0XInit(t *testing.T) {
	bus := newFakeBus(0xEE, 0)
	d := NewVL53L0X(bus, 0)

	require.NoError(t, d.Init())
	assert.Equal(t, []byte{startSingleShot}, bus.writes[regSysRangeStart])
}

func TestVL53L0XRejectsUnknownModel(t *testing.T) {
	d := NewVL53L0X(newFakeBus(0x00, 0), VL53L0XAddr)

	err := d.Init()
	assert.True(t, errors.Is(err, ErrNoDevice), "got %v", err)
}

func TestVL53L0XRead(t *testing.T) {
	bus := newFakeBus(0xAA, 0x012C)
	bus.pending = 3
	d := NewVL53L0X(bus, VL53L0XAddr)
	require.NoError(t, d.Init())

	got, err := d.Read()
	require.NoError(t, err)
	assert.Equal(t, 300.0, got)

	// init + restart after the read
	assert.Len(t, bus.writes[regSysRangeStart], 2)
	assert.Equal(t, []byte{0x01}, bus.writes[regInterruptClear])
}

func TestVL53L0XReadTimeout(t *testing.T) {
	bus := newFakeBus(0xCC, 100)
	bus.regs[regResultRangeStatus] = 0
	d := NewVL53L0X(bus, VL53L0XAddr)
	d.timeout = 0

	_, err := d.Read()
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestVL53L0XReadTimeoutRestartError(t *testing.T) {
	bus := newFakeBus(0xCC, 100)
	bus.regs[regResultRangeStatus] = 0
	bus.failW = errors.New("i2c: remote i/o error")
	d := NewVL53L0X(bus, VL53L0XAddr)
	d.timeout = 0

	_, err := d.Read()
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, bus.failW)
	assert.Contains(t, err.Error(), "restart ranging")
}

func TestVL53L0XBusError(t *testing.T) {
	bus := newFakeBus(0xEE, 100)
	bus.failTx = errors.New("i2c: remote i/o error")
	d := NewVL53L0X(bus, VL53L0XAddr)

	_, err := d.Read()
	assert.Error(t, err)
	assert.NoError(t, d.Close())
}
