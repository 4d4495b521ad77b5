// Package controller runs the fixed-cadence control loop: it reads the
// sampled inputs, stabilizes the latch limits, assembles the per-tick
// snapshot and hands it to the telemetry link.
package controller

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/delivery-sensor/internal/filter"
	"github.com/sweeney/delivery-sensor/internal/link"
	"github.com/sweeney/delivery-sensor/internal/logic"
	"github.com/sweeney/delivery-sensor/internal/mqtt"
	"github.com/sweeney/delivery-sensor/internal/status"
)

// ErrLatchCount is returned by NewLoop when the inputs do not describe
// exactly two latches.
var ErrLatchCount = errors.New("controller: exactly two latches are required")

// latchCount is fixed by the socket layout: sockets 1-4 carry the close and
// open limits of latch 1 and latch 2.
const latchCount = 2

// Reading is a single-slot cell holding the latest raw sample of a source.
// *sensor.Sampler satisfies it.
type Reading[T any] interface {
	Latest() (T, bool)
}

// LatchInputs are the raw limit switch readings of one latch.
type LatchInputs struct {
	Open  Reading[bool]
	Close Reading[bool]
}

// Inputs are the sampled sources the loop reads every tick. Distance and
// Temperature may be nil when the sensor is absent.
type Inputs struct {
	Latches []LatchInputs

	// Distance is the raw ranging reading; DistanceFilter holds its rolling
	// median and is fed by the distance sampler.
	Distance       Reading[float64]
	DistanceFilter *filter.Stabilizer[float64, float64]

	Temperature Reading[float64]
}

// Sink accepts snapshots for delivery. *link.Manager satisfies it.
type Sink interface {
	Submit(s logic.Snapshot) bool
	Stats() link.Stats
}

// Config holds the loop parameters.
type Config struct {
	LimitWindow int
	Range       logic.Range
	// Heartbeat is the MQTT heartbeat interval; zero disables it.
	Heartbeat time.Duration
}

// Option configures a Loop.
type Option func(*Loop)

// WithPublisher mirrors door events and heartbeats to p.
func WithPublisher(p mqtt.Publisher) Option {
	return func(l *Loop) {
		l.publisher = p
		if cs, ok := p.(mqtt.ConnectionStatus); ok {
			l.mqttStatus = cs
		}
	}
}

// WithTracker records every tick in t for the status page.
func WithTracker(t *status.Tracker) Option {
	return func(l *Loop) {
		l.tracker = t
	}
}

// WithClock overrides time.Now. The clock is only used for the monitor start
// time and the shutdown event; ticks carry their own time.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		l.now = now
	}
}

// Loop is the control loop. Tick is not safe for concurrent use; Run calls it
// from a single goroutine.
type Loop struct {
	inputs  Inputs
	latches []*logic.Latch
	door    *logic.Door
	monitor *logic.Monitor
	cfg     Config
	sink    Sink
	log     *zap.Logger

	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	now        func() time.Time
}

// NewLoop creates a control loop over in that submits to sink.
func NewLoop(in Inputs, sink Sink, cfg Config, log *zap.Logger, opts ...Option) (*Loop, error) {
	if len(in.Latches) != latchCount {
		return nil, ErrLatchCount
	}
	for _, li := range in.Latches {
		if li.Open == nil || li.Close == nil {
			return nil, errors.New("controller: latch input missing")
		}
	}
	if sink == nil {
		return nil, errors.New("controller: nil sink")
	}
	if cfg.LimitWindow <= 0 {
		cfg.LimitWindow = logic.DefaultLimitWindow
	}
	if log == nil {
		log = zap.NewNop()
	}

	l := &Loop{
		inputs: in,
		cfg:    cfg,
		sink:   sink,
		log:    log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	l.latches = make([]*logic.Latch, latchCount)
	for i := range l.latches {
		l.latches[i] = logic.NewLatch(cfg.LimitWindow)
	}
	l.door = logic.NewDoor(l.latches...)
	l.monitor = logic.NewMonitor(l.now())
	return l, nil
}

// Tick performs one control cycle at time t and returns the snapshot it
// submitted.
func (l *Loop) Tick(t time.Time) logic.Snapshot {
	// Both limits of a latch are read back to back so SetState sees one
	// logical instant.
	for i, in := range l.inputs.Latches {
		open, _ := in.Open.Latest()
		closed, _ := in.Close.Latest()
		l.latches[i].SetState(open, closed)
	}

	sensors := l.readSensors()
	l1, l2 := l.latches[0], l.latches[1]
	snap := logic.Snapshot{
		Sockets: [logic.SocketCount]bool{
			l1.CloseLimit(),
			l2.CloseLimit(),
			l1.OpenLimit(),
			l2.OpenLimit(),
			sensors.InRange,
		},
	}
	if sensors.HasTemperature {
		snap.Temperature = float32(sensors.Temperature)
		snap.HasTemperature = true
	}

	door := l.door.State()
	latchStates := l.door.LatchStates()

	l.logTick(snap, sensors, door, latchStates)

	if !l.sink.Submit(snap) {
		l.log.Debug("snapshot not queued")
	}

	events := l.monitor.Process(logic.Input{Door: door, Latches: latchStates, Time: t})
	for _, event := range events {
		l.log.Info("door event",
			zap.String("event", string(event.Type)),
			zap.String("from", string(event.From)),
			zap.String("door", string(event.Door)),
		)
		if l.publisher != nil {
			if err := l.publisher.Publish(event); err != nil {
				l.log.Error("publish error", zap.Error(err))
			}
		}
	}

	l.updateTracker(snap, sensors, door)
	l.checkHeartbeat(t)
	return snap
}

func (l *Loop) readSensors() status.Sensors {
	var s status.Sensors
	if l.inputs.Temperature != nil {
		s.Temperature, s.HasTemperature = l.inputs.Temperature.Latest()
	}
	if l.inputs.Distance != nil {
		s.RawDistance, s.HasDistance = l.inputs.Distance.Latest()
	}
	if l.inputs.DistanceFilter != nil {
		var ok bool
		s.Distance, ok = l.inputs.DistanceFilter.Value()
		s.HasDistance = s.HasDistance && ok
	} else {
		s.Distance = s.RawDistance
	}
	s.InRange = l.cfg.Range.Contains(s.Distance, s.HasDistance)
	return s
}

func (l *Loop) logTick(snap logic.Snapshot, sensors status.Sensors, door logic.LatchState, latches []logic.LatchState) {
	fields := []zap.Field{
		zap.Bools("sockets", snap.Sockets[:]),
		zap.String("door", string(door)),
		zap.Strings("latches", latchStrings(latches)),
		zap.Bool("in_range", sensors.InRange),
	}
	if sensors.HasTemperature {
		fields = append(fields, zap.Float64("temp", sensors.Temperature))
	}
	if sensors.HasDistance {
		fields = append(fields, zap.Float64("dist", sensors.Distance), zap.Float64("raw_dist", sensors.RawDistance))
	}
	l.log.Info("tick", fields...)
}

func (l *Loop) updateTracker(snap logic.Snapshot, sensors status.Sensors, door logic.LatchState) {
	if l.tracker == nil {
		return
	}
	latches := make([]status.LatchInfo, len(l.latches))
	for i, latch := range l.latches {
		latches[i] = status.LatchInfo{
			OpenLimit:  latch.OpenLimit(),
			CloseLimit: latch.CloseLimit(),
			State:      latch.State(),
		}
	}
	l.tracker.Update(status.Observation{
		Door:      door,
		Latches:   latches,
		Sockets:   snap.Sockets,
		Sensors:   sensors,
		Baselined: l.monitor.IsBaselined(),
		Counts:    l.monitor.EventCountsSnapshot(),
	})
	l.tracker.SetLink(l.sink.Stats())
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
}

func (l *Loop) checkHeartbeat(t time.Time) {
	if l.publisher == nil {
		return
	}
	hb := l.monitor.CheckHeartbeat(t, l.cfg.Heartbeat)
	if hb == nil {
		return
	}
	l.log.Info("heartbeat",
		zap.Duration("uptime", hb.Uptime),
		zap.Int("door_open", hb.Counts.Open),
		zap.Int("door_closed", hb.Counts.Closed),
		zap.Int("door_error", hb.Counts.Error),
	)

	event := mqtt.SystemEvent{
		Timestamp: hb.Timestamp,
		Event:     "HEARTBEAT",
	}
	if l.tracker != nil {
		event.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), "HEARTBEAT", "")
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		l.log.Error("heartbeat publish error", zap.Error(err))
	}
}

// Run calls Tick for every value received on tick until ctx is done or a
// signal arrives on sig. On a signal it publishes a retained SHUTDOWN event.
// It always returns nil.
func (l *Loop) Run(ctx context.Context, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case s := <-sig:
			l.log.Info("shutting down", zap.Stringer("signal", s))
			l.publishShutdown(signalName(s))
			return nil

		case t := <-tick:
			l.Tick(t)
		}
	}
}

func (l *Loop) publishShutdown(reason string) {
	if l.publisher == nil {
		return
	}
	event := mqtt.SystemEvent{
		Timestamp: l.now(),
		Event:     "SHUTDOWN",
		Reason:    reason,
		Retained:  true,
	}
	if l.tracker != nil {
		if l.mqttStatus != nil {
			l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
		}
		event.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), "SHUTDOWN", reason)
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		l.log.Error("failed to publish shutdown event", zap.Error(err))
		return
	}
	l.log.Info("published shutdown event")
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

func latchStrings(states []logic.LatchState) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

// Door returns the current derived door state.
func (l *Loop) Door() logic.LatchState {
	return l.door.State()
}
