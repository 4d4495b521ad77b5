// Package status provides a thread-safe status tracker for the delivery-sensor
// daemon. It is read by the HTTP handlers and by MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/delivery-sensor/internal/link"
	"github.com/sweeney/delivery-sensor/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	LoopMs            int64
	LimitPollMs       int64
	DistancePollMs    int64
	TemperaturePollMs int64
	LimitWindow       int
	DistanceWindow    int
	RangeMinMM        float64
	RangeMaxMM        float64
	LinkDevice        string
	HeartbeatMs       int64
	Broker            string
	HTTPAddr          string
}

// LatchInfo is the stabilized view of one latch.
type LatchInfo struct {
	OpenLimit  bool
	CloseLimit bool
	State      logic.LatchState
}

// Sensors holds the latest analogue readings.
type Sensors struct {
	Temperature    float64
	HasTemperature bool
	Distance       float64 // median-filtered
	RawDistance    float64
	HasDistance    bool
	InRange        bool
}

// Observation is everything the control loop derives in one tick.
type Observation struct {
	Door      logic.LatchState
	Latches   []LatchInfo
	Sockets   [logic.SocketCount]bool
	Sensors   Sensors
	Baselined bool
	Counts    logic.EventCounts
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Observation
	Ticks         uint64
	Link          link.Stats
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update records the latest observation. Called from the control loop on
// every tick.
func (t *Tracker) Update(obs Observation) {
	obs.Latches = append([]LatchInfo(nil), obs.Latches...)
	t.mu.Lock()
	t.snap.Observation = obs
	t.snap.Ticks++
	t.mu.Unlock()
}

// SetLink records the latest link counters.
func (t *Tracker) SetLink(stats link.Stats) {
	t.mu.Lock()
	t.snap.Link = stats
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Latches = append([]LatchInfo(nil), t.snap.Latches...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
