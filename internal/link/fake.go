package link

import (
	"context"
	"sync"

	"github.com/sweeney/delivery-sensor/internal/packet"
)

// FakeTransport is a scripted in-memory Transport for tests.
type FakeTransport struct {
	mu sync.Mutex

	// ConnectErrs are returned by successive Connect calls; once exhausted,
	// Connect succeeds.
	ConnectErrs []error
	// HandshakeErrs are returned by successive handshakes in the same way.
	HandshakeErrs []error
	// BlockHandshake makes the first n handshakes wait for their context.
	BlockHandshake int
	// SendErr, if set, is consulted before every send with its zero-based
	// attempt number across all sessions.
	SendErr func(attempt int) error

	connects     int
	handshakes   int
	sendAttempts int
	endpoints    []string
	sessions     []*FakeSession
	sent         [][packet.Channels]uint16
}

// FakeSession is a session opened by FakeTransport.
type FakeSession struct {
	t      *FakeTransport
	mu     sync.Mutex
	closed bool
	sent   int
}

// Connect returns the next scripted error or a new FakeSession.
func (t *FakeTransport) Connect(ctx context.Context, endpoint string) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.connects++
	t.endpoints = append(t.endpoints, endpoint)
	if len(t.ConnectErrs) > 0 {
		err := t.ConnectErrs[0]
		t.ConnectErrs = t.ConnectErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	s := &FakeSession{t: t}
	t.sessions = append(t.sessions, s)
	return s, nil
}

// Connects returns the number of Connect calls.
func (t *FakeTransport) Connects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connects
}

// Endpoints returns the endpoints passed to Connect.
func (t *FakeTransport) Endpoints() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.endpoints...)
}

// Sessions returns every session opened so far.
func (t *FakeTransport) Sessions() []*FakeSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*FakeSession(nil), t.sessions...)
}

// Sent returns every record delivered, in order.
func (t *FakeTransport) Sent() [][packet.Channels]uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][packet.Channels]uint16(nil), t.sent...)
}

// AwaitHandshake returns the next scripted handshake result.
func (s *FakeSession) AwaitHandshake(ctx context.Context) error {
	t := s.t
	t.mu.Lock()
	n := t.handshakes
	t.handshakes++
	block := n < t.BlockHandshake
	var err error
	if !block && len(t.HandshakeErrs) > 0 {
		err = t.HandshakeErrs[0]
		t.HandshakeErrs = t.HandshakeErrs[1:]
	}
	t.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

// Send records channels unless SendErr rejects the attempt.
func (s *FakeSession) Send(channels [packet.Channels]uint16) error {
	t := s.t
	t.mu.Lock()
	defer t.mu.Unlock()

	attempt := t.sendAttempts
	t.sendAttempts++
	if t.SendErr != nil {
		if err := t.SendErr(attempt); err != nil {
			return err
		}
	}
	t.sent = append(t.sent, channels)

	s.mu.Lock()
	s.sent++
	s.mu.Unlock()
	return nil
}

// Close marks the session closed.
func (s *FakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *FakeSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SentCount returns how many records this session delivered.
func (s *FakeSession) SentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}
