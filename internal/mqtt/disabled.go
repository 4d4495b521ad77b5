package mqtt

import "github.com/sweeney/delivery-sensor/internal/logic"

// DisabledPublisher is used when no broker is configured. Every call
// succeeds and nothing is sent.
type DisabledPublisher struct{}

func (DisabledPublisher) Publish(logic.Event) error       { return nil }
func (DisabledPublisher) PublishSystem(SystemEvent) error { return nil }
func (DisabledPublisher) Close() error                    { return nil }
func (DisabledPublisher) IsConnected() bool               { return false }
