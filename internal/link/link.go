// Package link delivers encoded snapshots to the flight controller over an
// unreliable transport. A single background goroutine owns the session: it
// connects, waits for the peer's handshake, drains the outbound queue and
// reconnects after any failure. Producers never block.
package link

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sweeney/delivery-sensor/internal/logic"
	"github.com/sweeney/delivery-sensor/internal/packet"
)

// ErrStopped is returned by Run once the manager has been stopped.
var ErrStopped = errors.New("link: manager stopped")

// Session is one connected, exclusively owned transport session.
type Session interface {
	// AwaitHandshake blocks until the peer has identified itself or ctx ends.
	AwaitHandshake(ctx context.Context) error
	// Send transmits one record as sixteen channel values.
	Send(channels [packet.Channels]uint16) error
	Close() error
}

// Transport opens sessions to an endpoint.
type Transport interface {
	Connect(ctx context.Context, endpoint string) (Session, error)
}

// Config holds the link timing and sizing parameters.
type Config struct {
	Endpoint         string
	QueueSize        int
	HandshakeTimeout time.Duration
	ReconnectDelay   time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize:        64,
		HandshakeTimeout: 5 * time.Second,
		ReconnectDelay:   time.Second,
	}
}

// Stats is a point-in-time copy of the link counters.
type Stats struct {
	State     State  `json:"-"`
	Sent      uint64 `json:"sent"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
	Connects  uint64 `json:"connects"`
	Sessions  uint64 `json:"sessions"`
	Queued    int    `json:"queued"`
	SessionID string `json:"session_id,omitempty"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithStateHook registers fn to observe every state transition. fn runs on
// the manager goroutine and must not block.
func WithStateHook(fn func(State)) Option {
	return func(m *Manager) {
		m.onState = fn
	}
}

// Manager owns the transport session and the outbound snapshot queue.
type Manager struct {
	transport Transport
	cfg       Config
	log       *zap.Logger
	onState   func(State)

	queue chan logic.Snapshot
	state atomic.Int32

	sent     atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64
	connects atomic.Uint64
	sessions atomic.Uint64

	sessionID   atomic.Pointer[string]
	overflowing atomic.Bool

	stop     chan struct{}
	stopOnce sync.Once
}

// NewManager creates a manager in the Disconnected state. Nothing is opened
// until Run is called.
func NewManager(t Transport, cfg Config, log *zap.Logger, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.ReconnectDelay < 0 {
		cfg.ReconnectDelay = 0
	}
	if log == nil {
		log = zap.NewNop()
	}

	m := &Manager{
		transport: t,
		cfg:       cfg,
		log:       log.With(zap.String("endpoint", cfg.Endpoint)),
		queue:     make(chan logic.Snapshot, cfg.QueueSize),
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Submit enqueues a snapshot for delivery without blocking. When the queue is
// full the new snapshot is dropped and counted. Submit returns false after
// Stop or when the snapshot was dropped.
func (m *Manager) Submit(s logic.Snapshot) bool {
	if m.stopped() {
		return false
	}

	select {
	case m.queue <- s:
		if m.overflowing.Swap(false) {
			m.log.Info("queue accepting snapshots again")
		}
		return true
	default:
		m.dropped.Add(1)
		if !m.overflowing.Swap(true) {
			m.log.Warn("queue full, dropping newest snapshots", zap.Int("capacity", cap(m.queue)))
		}
		return false
	}
}

// Run drives the session lifecycle until ctx is done or Stop is called.
// It returns ErrStopped if the manager was already stopped, nil otherwise.
func (m *Manager) Run(ctx context.Context) error {
	if m.stopped() {
		return ErrStopped
	}
	defer m.Stop()
	defer m.setState(StateStopped)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-m.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for ctx.Err() == nil {
		m.runSession(ctx)
		if !sleep(ctx, m.cfg.ReconnectDelay) {
			break
		}
	}
	m.log.Info("link stopped", zap.Int("undelivered", len(m.queue)))
	return nil
}

// runSession performs one connect, handshake and transmit cycle. It returns
// when the session ends for any reason, leaving the manager Disconnected.
func (m *Manager) runSession(ctx context.Context) {
	m.setState(StateConnecting)
	m.connects.Add(1)

	sess, err := m.transport.Connect(ctx, m.cfg.Endpoint)
	if err != nil {
		if ctx.Err() == nil {
			m.log.Warn("connect failed", zap.Error(err))
		}
		m.setState(StateDisconnected)
		return
	}

	id := uuid.NewString()
	log := m.log.With(zap.String("session", id))
	m.sessionID.Store(&id)
	defer func() {
		if err := sess.Close(); err != nil {
			log.Debug("close session", zap.Error(err))
		}
		m.sessionID.Store(nil)
		m.setState(StateDisconnected)
	}()

	m.setState(StateAwaitingHandshake)
	hctx, hcancel := context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
	err = sess.AwaitHandshake(hctx)
	hcancel()
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("handshake failed", zap.Error(err))
		}
		return
	}

	m.sessions.Add(1)
	m.setState(StateReady)
	log.Info("link ready", zap.Int("queued", len(m.queue)))

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-m.queue:
			m.setState(StateSending)
			if err := sess.Send(packet.ToChannels(packet.Encode(s))); err != nil {
				m.failed.Add(1)
				m.setState(StateFaulted)
				log.Error("transmit failed, dropping snapshot and reconnecting",
					zap.Error(err), zap.Stringer("snapshot", s))
				return
			}
			m.sent.Add(1)
			log.Debug("snapshot sent", zap.Stringer("snapshot", s))
			m.setState(StateReady)
		}
	}
}

// Stop requests shutdown. Run closes the session and returns. It is safe to
// call more than once and from any goroutine.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// IsConnected reports whether a handshaken session is open.
func (m *Manager) IsConnected() bool {
	return m.State().Connected()
}

// Stats returns a copy of the link counters.
func (m *Manager) Stats() Stats {
	st := Stats{
		State:    m.State(),
		Sent:     m.sent.Load(),
		Dropped:  m.dropped.Load(),
		Failed:   m.failed.Load(),
		Connects: m.connects.Load(),
		Sessions: m.sessions.Load(),
		Queued:   len(m.queue),
	}
	if id := m.sessionID.Load(); id != nil {
		st.SessionID = *id
	}
	return st
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
	if m.onState != nil {
		m.onState(s)
	}
}

func (m *Manager) stopped() bool {
	select {
	case <-m.stop:
		return true
	default:
		return false
	}
}

// sleep waits for d or until ctx is done, reporting whether the full delay
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
