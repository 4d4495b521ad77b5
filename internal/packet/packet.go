// Package packet encodes the per-tick sensor snapshot into the fixed binary
// record carried to the flight controller.
//
// Layout (32 bytes, little-endian):
//
//	byte 0      flags; bit i = socket i+1, bits 5..7 zero
//	bytes 1..4  temperature, IEEE-754 float32 (quiet NaN when unknown)
//	bytes 5..31 zero
//
// The record is exposed to the transport as sixteen uint16 channel values,
// channel i = bytes 2i (low) and 2i+1 (high).
package packet

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/sweeney/delivery-sensor/internal/logic"
)

const (
	// Size is the encoded record size in bytes.
	Size = 32
	// Channels is the number of uint16 transport channels.
	Channels = 16

	flagsMask = 1<<logic.SocketCount - 1
	tempStart = 1
	tempEnd   = 5
)

// NoTemperature is the float32 bit pattern sent when no reading is available.
const NoTemperature uint32 = 0x7FC00000

var ErrMalformed = errors.New("packet: malformed record")

// Packet is one encoded record.
type Packet [Size]byte

// Encode packs a snapshot. It never fails.
func Encode(s logic.Snapshot) Packet {
	var p Packet
	var flags byte
	for i, on := range s.Sockets {
		if on {
			flags |= 1 << i
		}
	}
	p[0] = flags

	bits := NoTemperature
	if s.HasTemperature && !math.IsNaN(float64(s.Temperature)) {
		bits = math.Float32bits(s.Temperature)
	}
	binary.LittleEndian.PutUint32(p[tempStart:tempEnd], bits)
	return p
}

// ToChannels regroups the record into little-endian uint16 values and pads
// them to Channels entries.
func ToChannels(p Packet) [Channels]uint16 {
	return PadChannels(words(p[:]))
}

// words regroups b into little-endian uint16 values. An odd trailing byte
// becomes the low byte of a final value.
func words(b []byte) []uint16 {
	out := make([]uint16, 0, (len(b)+1)/2)
	for i := 0; i < len(b); i += 2 {
		v := uint16(b[i])
		if i+1 < len(b) {
			v |= uint16(b[i+1]) << 8
		}
		out = append(out, v)
	}
	return out
}

// PadChannels copies up to Channels values and zero-fills the rest.
func PadChannels(values []uint16) [Channels]uint16 {
	var ch [Channels]uint16
	copy(ch[:], values)
	return ch
}

// FromChannels is the inverse of ToChannels.
func FromChannels(ch [Channels]uint16) Packet {
	var p Packet
	for i, v := range ch {
		binary.LittleEndian.PutUint16(p[2*i:2*i+2], v)
	}
	return p
}

// Decode unpacks a record. It is used by peers and test harnesses; the
// controller itself is send-only.
func Decode(p Packet) (logic.Snapshot, error) {
	var s logic.Snapshot
	if p[0]&^flagsMask != 0 {
		return s, ErrMalformed
	}
	for _, b := range p[tempEnd:] {
		if b != 0 {
			return s, ErrMalformed
		}
	}

	for i := range s.Sockets {
		s.Sockets[i] = p[0]&(1<<i) != 0
	}

	bits := binary.LittleEndian.Uint32(p[tempStart:tempEnd])
	temp := math.Float32frombits(bits)
	if !math.IsNaN(float64(temp)) {
		s.Temperature = temp
		s.HasTemperature = true
	}
	return s, nil
}
