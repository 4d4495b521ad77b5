// Package mavlink pushes servo channel values to a flight controller as
// MAVLink 2 SERVO_OUTPUT_RAW messages over a serial port. Framing, checksums
// and message codecs come from gomavlib; the port is opened with
// go.bug.st/serial.
package mavlink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/frame"
	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/sweeney/delivery-sensor/internal/link"
	"github.com/sweeney/delivery-sensor/internal/packet"
)

// Ground-station identity used for outbound frames.
const (
	DefaultSystemID    = 255
	DefaultComponentID = 10
)

const readTimeout = 100 * time.Millisecond

// ErrShortWrite is returned when the port accepts fewer bytes than a frame.
var ErrShortWrite = errors.New("mavlink: short write")

// Port is the subset of serial.Port a session needs.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Opener opens the named device.
type Opener func(device string, opts PortOptions) (Port, error)

// OpenSerial opens a real serial port.
func OpenSerial(device string, opts PortOptions) (Port, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	p, err := serial.Open(device, mode)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Transport opens MAVLink sessions on a serial device.
type Transport struct {
	Options     PortOptions
	SystemID    uint8
	ComponentID uint8
	Open        Opener
	log         *zap.Logger
}

// NewTransport creates a serial MAVLink transport with the default identity.
func NewTransport(opts PortOptions, log *zap.Logger) *Transport {
	if log == nil {
		log = zap.NewNop()
	}
	return &Transport{
		Options:     opts,
		SystemID:    DefaultSystemID,
		ComponentID: DefaultComponentID,
		Open:        OpenSerial,
		log:         log,
	}
}

// Connect opens device and returns a session awaiting the peer's heartbeat.
func (t *Transport) Connect(ctx context.Context, device string) (link.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	port, err := t.Open(device, t.Options)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	s, err := t.newSession(port)
	if err != nil {
		port.Close()
		return nil, err
	}
	return s, nil
}

func (t *Transport) newSession(port Port) (*Session, error) {
	rw, err := newDialectRW()
	if err != nil {
		return nil, fmt.Errorf("init dialect: %w", err)
	}

	s := &Session{
		port: port,
		in:   &portReader{port: port, ctx: context.Background()},
		out:  &portWriter{port: port},
		log:  t.log,
	}
	s.reader = &frame.Reader{
		ByteReader: s.in,
		DialectRW:  rw,
	}
	if err := s.reader.Initialize(); err != nil {
		return nil, fmt.Errorf("init frame reader: %w", err)
	}
	s.writer = &frame.Writer{
		ByteWriter:     s.out,
		DialectRW:      rw,
		OutVersion:     frame.V2,
		OutSystemID:    t.SystemID,
		OutComponentID: t.ComponentID,
	}
	if err := s.writer.Initialize(); err != nil {
		return nil, fmt.Errorf("init frame writer: %w", err)
	}
	return s, nil
}

// portReader adapts a port with a read timeout to the blocking reads the
// frame reader expects. Empty reads poll ctx so a handshake wait can end.
// The first error sticks.
type portReader struct {
	port Port
	ctx  context.Context
	err  error
}

func (r *portReader) Read(b []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	for {
		n, err := r.port.Read(b)
		if err != nil {
			r.err = fmt.Errorf("read: %w", err)
			return n, r.err
		}
		if n > 0 {
			return n, nil
		}
		if err := r.ctx.Err(); err != nil {
			r.err = err
			return 0, err
		}
	}
}

// portWriter reports a short write as ErrShortWrite and remembers the last
// port error for Send.
type portWriter struct {
	port Port
	err  error
}

func (w *portWriter) Write(b []byte) (int, error) {
	n, err := w.port.Write(b)
	if err == nil && n != len(b) {
		err = fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(b))
	}
	w.err = err
	return n, err
}

// Session is one open telemetry connection. AwaitHandshake must not run
// concurrently with itself; Send may be called from any goroutine.
type Session struct {
	mu     sync.Mutex
	port   Port
	in     *portReader
	out    *portWriter
	reader *frame.Reader
	writer *frame.Writer
	log    *zap.Logger

	peerSystem    uint8
	peerComponent uint8
}

// AwaitHandshake reads until a HEARTBEAT arrives or ctx ends. Frames that
// fail to parse are skipped.
func (s *Session) AwaitHandshake(ctx context.Context) error {
	s.in.ctx = ctx
	for {
		fr, err := s.reader.Read()
		if err != nil {
			if s.in.err != nil {
				return fmt.Errorf("waiting for heartbeat: %w", s.in.err)
			}
			s.log.Debug("skipping frame", zap.Error(err))
			continue
		}
		hb, ok := fr.GetMessage().(*common.MessageHeartbeat)
		if !ok {
			continue
		}

		s.mu.Lock()
		s.peerSystem, s.peerComponent = fr.GetSystemID(), fr.GetComponentID()
		s.mu.Unlock()

		version := 2
		if _, v1 := fr.(*frame.V1Frame); v1 {
			version = 1
		}
		s.log.Info("heartbeat received",
			zap.Uint8("system", fr.GetSystemID()),
			zap.Uint8("component", fr.GetComponentID()),
			zap.Any("autopilot", hb.Autopilot),
			zap.Int("mavlink", version))
		return nil
	}
}

// Peer returns the system and component id of the handshaken peer.
func (s *Session) Peer() (system, component uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerSystem, s.peerComponent
}

// Send writes one SERVO_OUTPUT_RAW frame carrying channels.
func (s *Session) Send(channels [packet.Channels]uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.out.err = nil
	if err := s.writer.WriteMessage(servoOutputRaw(channels)); err != nil {
		if s.out.err != nil {
			err = s.out.err
		}
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Close closes the underlying port.
func (s *Session) Close() error {
	return s.port.Close()
}
