package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string      `json:"event,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	Door          string      `json:"door"`
	Ready         bool        `json:"ready"`
	Latches       []LatchJSON `json:"latches"`
	Sockets       []bool      `json:"sockets"`
	Sensors       SensorsJSON `json:"sensors"`
	Link          LinkJSON    `json:"link"`
	Ticks         uint64      `json:"ticks"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	StartTime     string      `json:"start_time"`
	Timestamp     string      `json:"timestamp"`
	MQTT          MQTTStatus  `json:"mqtt"`
	Counts        CountsJSON  `json:"event_counts"`
	Config        ConfigJSON  `json:"config"`
}

// LatchJSON is the JSON representation of one latch.
type LatchJSON struct {
	State      string `json:"state"`
	OpenLimit  bool   `json:"open_limit"`
	CloseLimit bool   `json:"close_limit"`
}

// SensorsJSON reports the analogue readings; unknown values are null.
type SensorsJSON struct {
	TemperatureC  *float64 `json:"temperature_c"`
	DistanceMM    *float64 `json:"distance_mm"`
	RawDistanceMM *float64 `json:"raw_distance_mm"`
	InRange       bool     `json:"in_range"`
}

// LinkJSON reports the flight controller link.
type LinkJSON struct {
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	Device    string `json:"device"`
	SessionID string `json:"session_id,omitempty"`
	Sent      uint64 `json:"sent"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
	Connects  uint64 `json:"connects"`
	Sessions  uint64 `json:"sessions"`
	Queued    int    `json:"queued"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	DoorOpen   int `json:"door_open"`
	DoorClosed int `json:"door_closed"`
	DoorError  int `json:"door_error"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	LoopMs            int64   `json:"loop_ms"`
	LimitPollMs       int64   `json:"limit_poll_ms"`
	DistancePollMs    int64   `json:"distance_poll_ms"`
	TemperaturePollMs int64   `json:"temperature_poll_ms"`
	LimitWindow       int     `json:"limit_window"`
	DistanceWindow    int     `json:"distance_window"`
	RangeMinMM        float64 `json:"range_min_mm"`
	RangeMaxMM        float64 `json:"range_max_mm"`
	LinkDevice        string  `json:"link_device"`
	HeartbeatMs       int64   `json:"heartbeat_ms"`
	Broker            string  `json:"broker"`
	HTTPAddr          string  `json:"http_addr"`
}

func optional(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

func buildInner(snap Snapshot) StatusInner {
	door := string(snap.Door)
	if door == "" {
		door = "UNKNOWN"
	}

	latches := make([]LatchJSON, len(snap.Latches))
	for i, l := range snap.Latches {
		latches[i] = LatchJSON{State: string(l.State), OpenLimit: l.OpenLimit, CloseLimit: l.CloseLimit}
	}

	return StatusInner{
		Door:    door,
		Ready:   snap.Baselined,
		Latches: latches,
		Sockets: snap.Sockets[:],
		Sensors: SensorsJSON{
			TemperatureC:  optional(snap.Sensors.Temperature, snap.Sensors.HasTemperature),
			DistanceMM:    optional(snap.Sensors.Distance, snap.Sensors.HasDistance),
			RawDistanceMM: optional(snap.Sensors.RawDistance, snap.Sensors.HasDistance),
			InRange:       snap.Sensors.InRange,
		},
		Link: LinkJSON{
			State:     snap.Link.State.String(),
			Connected: snap.Link.State.Connected(),
			Device:    snap.Config.LinkDevice,
			SessionID: snap.Link.SessionID,
			Sent:      snap.Link.Sent,
			Dropped:   snap.Link.Dropped,
			Failed:    snap.Link.Failed,
			Connects:  snap.Link.Connects,
			Sessions:  snap.Link.Sessions,
			Queued:    snap.Link.Queued,
		},
		Ticks:         snap.Ticks,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			DoorOpen:   snap.Counts.Open,
			DoorClosed: snap.Counts.Closed,
			DoorError:  snap.Counts.Error,
		},
		Config: ConfigJSON{
			LoopMs:            snap.Config.LoopMs,
			LimitPollMs:       snap.Config.LimitPollMs,
			DistancePollMs:    snap.Config.DistancePollMs,
			TemperaturePollMs: snap.Config.TemperaturePollMs,
			LimitWindow:       snap.Config.LimitWindow,
			DistanceWindow:    snap.Config.DistanceWindow,
			RangeMinMM:        snap.Config.RangeMinMM,
			RangeMaxMM:        snap.Config.RangeMaxMM,
			LinkDevice:        snap.Config.LinkDevice,
			HeartbeatMs:       snap.Config.HeartbeatMs,
			Broker:            snap.Config.Broker,
			HTTPAddr:          snap.Config.HTTPAddr,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
