// Package logic contains pure business logic for the delivery mechanism:
// latch and door state derivation, the per-tick sensor snapshot and the
// door transition monitor.
// This package has NO hardware dependencies (no GPIO, serial, MQTT or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"time"
)

// LatchState is the derived mechanical state of a latch or a door.
type LatchState string

const (
	StateOpen   LatchState = "OPEN"
	StateClosed LatchState = "CLOSED"
	StateError  LatchState = "ERROR"
)

// SocketCount is the number of boolean flags carried by a Snapshot.
const SocketCount = 5

// Snapshot is the complete set of derived sensor values assembled once per
// control cycle. It is a value type and is never mutated after construction.
type Snapshot struct {
	// Sockets holds the five flags; Sockets[i] is socket i+1.
	Sockets [SocketCount]bool

	// Temperature in degrees Celsius. Only meaningful if HasTemperature.
	Temperature    float32
	HasTemperature bool
}

// String renders the snapshot for log lines.
func (s Snapshot) String() string {
	temp := "n/a"
	if s.HasTemperature {
		temp = fmt.Sprintf("%.2f", s.Temperature)
	}
	return fmt.Sprintf("sockets=%v temp=%s", s.Sockets, temp)
}

// Range is an open interval (Min, Max) used for the distance in-range flag.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v lies strictly between Min and Max.
// An unknown value (ok == false) is never in range.
func (r Range) Contains(v float64, ok bool) bool {
	if !ok {
		return false
	}
	return r.Min < v && v < r.Max
}

// EventType represents a door state transition.
type EventType string

const (
	EventDoorOpen   EventType = "DOOR_OPEN"
	EventDoorClosed EventType = "DOOR_CLOSED"
	EventDoorError  EventType = "DOOR_ERROR"
)

// Event represents a door transition to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	From      LatchState
	Door      LatchState
	Latches   []LatchState
}

// Input represents a single derived observation of the door.
type Input struct {
	Door    LatchState
	Latches []LatchState
	Time    time.Time
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	Open   int
	Closed int
	Error  int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
