package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/delivery-sensor/internal/logic"
)

func doorEvent(typ logic.EventType, from, to logic.LatchState) logic.Event {
	return logic.Event{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Type:      typ,
		From:      from,
		Door:      to,
		Latches:   []logic.LatchState{to, to},
	}
}

func TestFormatPayload(t *testing.T) {
	payload, err := FormatPayload(doorEvent(logic.EventDoorOpen, logic.StateClosed, logic.StateOpen))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Door.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("unexpected timestamp: %s", parsed.Door.Timestamp)
	}
	if parsed.Door.Event != "DOOR_OPEN" {
		t.Errorf("unexpected event: %s", parsed.Door.Event)
	}
	if parsed.Door.From != "CLOSED" {
		t.Errorf("unexpected from: %s", parsed.Door.From)
	}
	if parsed.Door.State != "OPEN" {
		t.Errorf("unexpected state: %s", parsed.Door.State)
	}
	if len(parsed.Door.Latches) != 2 || parsed.Door.Latches[1] != "OPEN" {
		t.Errorf("unexpected latches: %v", parsed.Door.Latches)
	}
}

func TestFormatPayloadExactJSON(t *testing.T) {
	ev := doorEvent(logic.EventDoorError, logic.StateClosed, logic.StateError)
	ev.Latches = []logic.LatchState{logic.StateClosed, logic.StateError}

	payload, err := FormatPayload(ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"door":{"timestamp":"2026-02-02T22:18:12Z","event":"DOOR_ERROR","from":"CLOSED","state":"ERROR","latches":["CLOSED","ERROR"]}}`
	if string(payload) != want {
		t.Errorf("got  %s\nwant %s", payload, want)
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	ev := doorEvent(logic.EventDoorClosed, logic.StateOpen, logic.StateClosed)
	ev.Timestamp = time.Date(2026, 2, 3, 1, 0, 0, 0, loc)

	payload, _ := FormatPayload(ev)
	var parsed Payload
	json.Unmarshal(payload, &parsed)
	if parsed.Door.Timestamp != "2026-02-02T22:00:00Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.Door.Timestamp)
	}
}

func TestFormatSystemPayload(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"system":{"timestamp":"2026-02-02T22:18:12Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != want {
		t.Errorf("got  %s\nwant %s", payload, want)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"event":"HEARTBEAT"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "HEARTBEAT", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload passthrough, got %s", payload)
	}
}

func TestWillPayloadFormat(t *testing.T) {
	want := `{"system":{"event":"OFFLINE","reason":"CONNECTION_LOST"}}`
	if got := string(WillPayload()); got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestTopics(t *testing.T) {
	if Topic != "delivery/sensor/events" {
		t.Errorf("unexpected topic: %s", Topic)
	}
	if TopicSystem != "delivery/sensor/system" {
		t.Errorf("unexpected system topic: %s", TopicSystem)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()
	ev := doorEvent(logic.EventDoorOpen, logic.StateClosed, logic.StateOpen)

	if err := f.Publish(ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.PublishSystem(SystemEvent{Event: "STARTUP", Retained: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := f.PublishedEvents()
	if len(events) != 1 || events[0].Type != logic.EventDoorOpen {
		t.Errorf("unexpected events: %v", events)
	}
	if len(f.Payloads) != 1 {
		t.Errorf("expected 1 payload, got %d", len(f.Payloads))
	}
	sys := f.PublishedSystemEvents()
	if len(sys) != 1 || !sys[0].Retained {
		t.Errorf("unexpected system events: %v", sys)
	}
}

func TestFakePublisherErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker down")
	f.PublishSystemError = errors.New("broker down")

	if err := f.Publish(doorEvent(logic.EventDoorOpen, logic.StateClosed, logic.StateOpen)); err == nil {
		t.Error("expected publish error")
	}
	if err := f.PublishSystem(SystemEvent{Event: "HEARTBEAT"}); err == nil {
		t.Error("expected publish system error")
	}
	if len(f.PublishedEvents()) != 0 || len(f.PublishedSystemEvents()) != 0 {
		t.Error("failed publishes should not be recorded")
	}
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.Publish(doorEvent(logic.EventDoorOpen, logic.StateClosed, logic.StateOpen))
	f.Connected = true
	f.Close()

	f.Reset()
	if len(f.Events) != 0 || f.Closed || f.IsConnected() {
		t.Error("reset should clear recorded state")
	}
}

func TestDisabledPublisher(t *testing.T) {
	var p Publisher = DisabledPublisher{}
	if err := p.Publish(logic.Event{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := p.PublishSystem(SystemEvent{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if p.(ConnectionStatus).IsConnected() {
		t.Error("disabled publisher should never report connected")
	}
}

func TestRealPublisherBuffersWhileDisconnected(t *testing.T) {
	// Nothing listens on port 1; the client keeps retrying in the background.
	p := NewRealPublisher("tcp://127.0.0.1:1", "delivery-sensor-test", nil)

	if p.IsConnected() {
		t.Fatal("expected publisher to be disconnected")
	}
	for i := 0; i < bufferSize+5; i++ {
		if err := p.Publish(doorEvent(logic.EventDoorOpen, logic.StateClosed, logic.StateOpen)); err != nil {
			t.Fatalf("publish while disconnected should buffer, got %v", err)
		}
	}
	if n := p.Buffered(); n != bufferSize {
		t.Errorf("expected buffer capped at %d, got %d", bufferSize, n)
	}
}
