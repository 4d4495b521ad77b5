package logic

import "time"

// Monitor tracks the door state across ticks and reports transitions.
// Stabilization happens upstream in the latches, so a change is reported on
// the first tick it is observed.
type Monitor struct {
	current       LatchState
	baselined     bool
	startTime     time.Time
	eventCounts   EventCounts
	lastHeartbeat time.Time
}

// NewMonitor creates a door monitor.
// The startTime is used for calculating uptime in heartbeat events.
func NewMonitor(startTime time.Time) *Monitor {
	return &Monitor{
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Process takes a new observation and returns any events that should be emitted.
// The first observation establishes the baseline and emits nothing.
func (m *Monitor) Process(input Input) []Event {
	if !m.baselined {
		m.current = input.Door
		m.baselined = true
		return nil
	}

	if input.Door == m.current {
		return nil
	}

	from := m.current
	m.current = input.Door

	event := Event{
		Timestamp: input.Time,
		Type:      eventTypeForState(input.Door),
		From:      from,
		Door:      input.Door,
		Latches:   append([]LatchState(nil), input.Latches...),
	}

	switch event.Type {
	case EventDoorOpen:
		m.eventCounts.Open++
	case EventDoorClosed:
		m.eventCounts.Closed++
	case EventDoorError:
		m.eventCounts.Error++
	}

	return []Event{event}
}

func eventTypeForState(s LatchState) EventType {
	switch s {
	case StateOpen:
		return EventDoorOpen
	case StateClosed:
		return EventDoorClosed
	default:
		return EventDoorError
	}
}

// IsBaselined returns whether the monitor has seen its first observation.
func (m *Monitor) IsBaselined() bool {
	return m.baselined
}

// CurrentState returns the last observed door state ("" before baseline).
func (m *Monitor) CurrentState() LatchState {
	return m.current
}

// EventCountsSnapshot returns a copy of the transition counts.
func (m *Monitor) EventCountsSnapshot() EventCounts {
	return m.eventCounts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if not yet baselined, if the
// interval has not elapsed, or if interval is <= 0 (disabled).
func (m *Monitor) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if !m.baselined {
		return nil
	}

	if now.Sub(m.lastHeartbeat) < interval {
		return nil
	}

	m.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(m.startTime),
		Counts:    m.eventCounts,
	}
}
