package packet

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sweeney/delivery-sensor/internal/logic"
)

func TestEncodeLayout(t *testing.T) {
	s := logic.Snapshot{
		Sockets:        [logic.SocketCount]bool{true, false, true, false, true},
		Temperature:    21.5,
		HasTemperature: true,
	}

	p := Encode(s)

	var want Packet
	want[0] = 0b10101
	// 21.5 = 0x41AC0000
	want[1], want[2], want[3], want[4] = 0x00, 0x00, 0xAC, 0x41

	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("Encode mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeSocketBits(t *testing.T) {
	for i := 0; i < logic.SocketCount; i++ {
		var s logic.Snapshot
		s.Sockets[i] = true
		p := Encode(s)
		if p[0] != 1<<i {
			t.Errorf("socket %d: expected flags %08b, got %08b", i+1, 1<<i, p[0])
		}
	}
}

func TestEncodeMissingTemperature(t *testing.T) {
	p := Encode(logic.Snapshot{})
	ch := ToChannels(p)

	// NaN 0x7FC00000 little-endian: 00 00 C0 7F starting at byte 1
	if p[1] != 0x00 || p[2] != 0x00 || p[3] != 0xC0 || p[4] != 0x7F {
		t.Errorf("unexpected sentinel bytes: % x", p[1:5])
	}
	if ch[0] != 0x0000 || ch[1] != 0xC000 || ch[2] != 0x007F {
		t.Errorf("unexpected channels: %#04x %#04x %#04x", ch[0], ch[1], ch[2])
	}
}

func TestEncodeNaNTemperatureUsesSentinel(t *testing.T) {
	p := Encode(logic.Snapshot{Temperature: float32(math.NaN()), HasTemperature: true})
	s, err := Decode(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.HasTemperature {
		t.Error("NaN temperature should decode as absent")
	}
}

func TestToChannelsRegroupsBytes(t *testing.T) {
	var p Packet
	for i := range p {
		p[i] = byte(i)
	}
	ch := ToChannels(p)
	for i, v := range ch {
		want := uint16(2*i) | uint16(2*i+1)<<8
		if v != want {
			t.Errorf("channel %d: expected %#04x, got %#04x", i, want, v)
		}
	}
	if FromChannels(ch) != p {
		t.Error("FromChannels did not invert ToChannels")
	}
}

func TestPadChannels(t *testing.T) {
	ch := PadChannels([]uint16{1, 2, 3})
	want := [Channels]uint16{1, 2, 3}
	if ch != want {
		t.Errorf("got %v, want %v", ch, want)
	}

	full := make([]uint16, Channels+4)
	for i := range full {
		full[i] = uint16(i + 1)
	}
	ch = PadChannels(full)
	if ch[Channels-1] != Channels {
		t.Errorf("expected truncation at %d values, last=%d", Channels, ch[Channels-1])
	}
}

func TestWordsShortRecord(t *testing.T) {
	got := words([]byte{0x01, 0x02, 0x03})
	if diff := cmp.Diff([]uint16{0x0201, 0x0003}, got); diff != "" {
		t.Errorf("words mismatch (-want +got):\n%s", diff)
	}

	// A record shorter than the channel count reaches the transport padded.
	ch := PadChannels(got)
	if ch[0] != 0x0201 || ch[1] != 0x0003 || ch[Channels-1] != 0 {
		t.Errorf("unexpected padded channels %v", ch)
	}
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		var s logic.Snapshot
		for j := range s.Sockets {
			s.Sockets[j] = rng.Intn(2) == 1
		}
		if rng.Intn(5) != 0 {
			s.Temperature = float32(rng.Float64()*200 - 60)
			s.HasTemperature = true
		}

		encoded := ToChannels(Encode(s))
		got, err := Decode(FromChannels(PadChannels(encoded[:])))
		if err != nil {
			t.Fatalf("case %d: decode error: %v", i, err)
		}
		if diff := cmp.Diff(s, got); diff != "" {
			t.Fatalf("case %d: round trip mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	var highBits Packet
	highBits[0] = 0x20
	if _, err := Decode(highBits); err != ErrMalformed {
		t.Errorf("high flag bits: expected ErrMalformed, got %v", err)
	}

	var padding Packet
	padding[31] = 1
	if _, err := Decode(padding); err != ErrMalformed {
		t.Errorf("non-zero padding: expected ErrMalformed, got %v", err)
	}
}
