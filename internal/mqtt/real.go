package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/sweeney/delivery-sensor/internal/filter"
	"github.com/sweeney/delivery-sensor/internal/logic"
)

// bufferSize is the number of messages held while the broker is unreachable.
const bufferSize = 100

const publishTimeout = 5 * time.Second

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// disconnected are buffered (oldest dropped first) and replayed in order
// once the connection is back.
type RealPublisher struct {
	client paho.Client
	log    *zap.Logger

	mu     sync.Mutex
	buffer *filter.Window[bufferedMsg]
}

// NewRealPublisher creates a publisher for the given broker. The initial
// connection is retried in the background, so an unreachable broker does not
// prevent startup.
func NewRealPublisher(broker, clientID string, log *zap.Logger) *RealPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	p := &RealPublisher{
		log:    log.With(zap.String("broker", broker)),
		buffer: filter.NewWindow[bufferedMsg](bufferSize),
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(WillPayload()), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warn("mqtt connection lost", zap.Error(err))
		})

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	msgs := p.buffer.Drain()
	p.mu.Unlock()

	p.log.Info("mqtt connected", zap.Int("replayed", len(msgs)))
	for _, m := range msgs {
		token := c.Publish(m.topic, m.qos, m.retained, m.payload)
		if token.WaitTimeout(publishTimeout) && token.Error() != nil {
			p.log.Warn("replay failed", zap.String("topic", m.topic), zap.Error(token.Error()))
		}
	}
}

func (p *RealPublisher) publish(m bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		overflowed := p.buffer.Overflowed()
		if p.buffer.Push(m) && !overflowed {
			p.log.Warn("mqtt buffer full, dropping oldest", zap.Int("capacity", p.buffer.Cap()))
		}
		p.mu.Unlock()
		return nil
	}

	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Publish sends a door event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 1: door transitions are rare and worth delivering.
	return p.publish(bufferedMsg{topic: Topic, payload: payload, qos: 1})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.Len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
