// Package mqtt mirrors door events and lifecycle status to an MQTT broker,
// with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/delivery-sensor/internal/logic"
)

// Topic is the MQTT topic for door events.
const Topic = "delivery/sensor/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "delivery/sensor/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a door event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Door DoorPayload `json:"door"`
}

// DoorPayload contains the door event details.
type DoorPayload struct {
	Timestamp string   `json:"timestamp"`
	Event     string   `json:"event"`
	From      string   `json:"from"`
	State     string   `json:"state"`
	Latches   []string `json:"latches"`
}

// FormatPayload creates the JSON payload for a door event.
func FormatPayload(event logic.Event) ([]byte, error) {
	latches := make([]string, len(event.Latches))
	for i, l := range event.Latches {
		latches[i] = string(l)
	}
	payload := Payload{
		Door: DoorPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			From:      string(event.From),
			State:     string(event.Door),
			Latches:   latches,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Event:  event.Event,
			Reason: event.Reason,
		},
	}
	if !event.Timestamp.IsZero() {
		payload.System.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(payload)
}

// WillPayload is the retained last-will message the broker publishes on
// TopicSystem if the connection drops without a clean shutdown.
func WillPayload() []byte {
	data, _ := FormatSystemPayload(SystemEvent{Event: "OFFLINE", Reason: "CONNECTION_LOST"})
	return data
}
