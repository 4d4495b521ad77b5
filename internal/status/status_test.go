package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/delivery-sensor/internal/link"
	"github.com/sweeney/delivery-sensor/internal/logic"
)

func closedObservation() Observation {
	return Observation{
		Door: logic.StateClosed,
		Latches: []LatchInfo{
			{CloseLimit: true, State: logic.StateClosed},
			{CloseLimit: true, State: logic.StateClosed},
		},
		Sockets:   [logic.SocketCount]bool{true, true, false, false, true},
		Sensors:   Sensors{Temperature: 21.5, HasTemperature: true, Distance: 120, RawDistance: 118, HasDistance: true, InRange: true},
		Baselined: true,
		Counts:    logic.EventCounts{Open: 2, Closed: 3},
	}
}

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{LoopMs: 100, LinkDevice: "/dev/serial0", HTTPAddr: ":80"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.LoopMs != 100 {
		t.Errorf("Config.LoopMs: got %d, want 100", snap.Config.LoopMs)
	}
	if snap.Baselined {
		t.Error("expected Baselined=false initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
	if snap.Link.State != link.StateDisconnected {
		t.Errorf("expected link DISCONNECTED initially, got %s", snap.Link.State)
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.Update(closedObservation())

	snap := tr.Snapshot()
	if snap.Door != logic.StateClosed {
		t.Errorf("Door: got %q, want CLOSED", snap.Door)
	}
	if len(snap.Latches) != 2 || !snap.Latches[1].CloseLimit {
		t.Errorf("unexpected latches: %+v", snap.Latches)
	}
	if !snap.Sockets[4] {
		t.Error("expected socket 5 set")
	}
	if snap.Counts.Closed != 3 {
		t.Errorf("Counts.Closed: got %d, want 3", snap.Counts.Closed)
	}
	if snap.Ticks != 1 {
		t.Errorf("Ticks: got %d, want 1", snap.Ticks)
	}
}

func TestSetLinkAndMQTT(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.SetLink(link.Stats{State: link.StateReady, Sent: 10, SessionID: "abc"})
	tr.SetMQTTConnected(true)

	snap := tr.Snapshot()
	if snap.Link.Sent != 10 || snap.Link.SessionID != "abc" {
		t.Errorf("unexpected link stats: %+v", snap.Link)
	}
	if !snap.MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Now().Add(-5 * time.Minute)
	tr := NewTracker(start, Config{})

	up := tr.Snapshot().Uptime()
	if up < 5*time.Minute || up > 5*time.Minute+time.Second {
		t.Errorf("Uptime: got %v, want ~5m", up)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	obs := closedObservation()
	tr.Update(obs)

	// Mutating the caller's slice must not leak into the tracker.
	obs.Latches[0].State = logic.StateError

	snap := tr.Snapshot()
	snap.Latches[1].State = logic.StateOpen

	again := tr.Snapshot()
	if again.Latches[0].State != logic.StateClosed || again.Latches[1].State != logic.StateClosed {
		t.Errorf("tracker state was mutated through a copy: %+v", again.Latches)
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start, Config{LoopMs: 100, LinkDevice: "/dev/serial0", Broker: "tcp://localhost:1883"})
	tr.Update(closedObservation())
	tr.SetLink(link.Stats{State: link.StateSending, Sent: 42, Dropped: 1, Connects: 2, Sessions: 2, SessionID: "s-1"})

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(tr.Snapshot()), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := parsed.Status

	if s.Door != "CLOSED" || !s.Ready {
		t.Errorf("unexpected door/ready: %s %v", s.Door, s.Ready)
	}
	if s.Event != "" || s.Reason != "" {
		t.Error("web JSON should not carry event/reason")
	}
	if len(s.Latches) != 2 || s.Latches[0].State != "CLOSED" || !s.Latches[0].CloseLimit {
		t.Errorf("unexpected latches: %+v", s.Latches)
	}
	if len(s.Sockets) != logic.SocketCount || !s.Sockets[0] || s.Sockets[2] {
		t.Errorf("unexpected sockets: %v", s.Sockets)
	}
	if s.Sensors.TemperatureC == nil || *s.Sensors.TemperatureC != 21.5 {
		t.Errorf("unexpected temperature: %v", s.Sensors.TemperatureC)
	}
	if s.Sensors.RawDistanceMM == nil || *s.Sensors.RawDistanceMM != 118 {
		t.Errorf("unexpected raw distance: %v", s.Sensors.RawDistanceMM)
	}
	if s.Link.State != "SENDING" || !s.Link.Connected || s.Link.Sent != 42 || s.Link.Device != "/dev/serial0" {
		t.Errorf("unexpected link: %+v", s.Link)
	}
	if s.Counts.DoorOpen != 2 || s.Counts.DoorClosed != 3 {
		t.Errorf("unexpected counts: %+v", s.Counts)
	}
	if s.StartTime != "2026-01-01T00:00:00Z" {
		t.Errorf("StartTime: got %q", s.StartTime)
	}
	if s.Config.LoopMs != 100 || s.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("unexpected config: %+v / %+v", s.Config, s.MQTT)
	}
}

func TestFormatJSONUnknownBeforeFirstTick(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	data := FormatJSON(tr.Snapshot())
	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Door != "UNKNOWN" {
		t.Errorf("Door: got %q, want UNKNOWN", parsed.Status.Door)
	}
	if parsed.Status.Sensors.TemperatureC != nil || parsed.Status.Sensors.DistanceMM != nil {
		t.Error("unknown readings should be null")
	}
}

func TestFormatStatusEvent(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.Update(closedObservation())

	data := FormatStatusEvent(tr.Snapshot(), "SHUTDOWN", "SIGTERM")
	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" || parsed.Status.Reason != "SIGTERM" {
		t.Errorf("unexpected event/reason: %q %q", parsed.Status.Event, parsed.Status.Reason)
	}

	var raw map[string]map[string]interface{}
	json.Unmarshal(FormatStatusEvent(tr.Snapshot(), "HEARTBEAT", ""), &raw)
	if _, ok := raw["status"]["reason"]; ok {
		t.Error("empty reason should be omitted")
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	// Writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			obs := closedObservation()
			obs.Counts.Open = i
			tr.Update(obs)
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetLink(link.Stats{Sent: uint64(i)})
		}
	}()

	// Reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
