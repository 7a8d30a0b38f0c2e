// bus.go: Package bus provides the durable publish/subscribe adapter used
// by every service in the pipeline.
//
// Delivery is at-least-once: messages are published at QoS 1 and consumed
// with automatic acknowledgement disabled; a message is acked only after
// its handler returns without error. Handler failure or a process crash
// leaves the message unacknowledged for broker redelivery, so handlers
// must be idempotent.
package bus

import (
	"context"
	"time"

	"github.com/sentinelvision/sentinel-central/internal/envelope"
)

// Handler processes one delivered message. A nil return acknowledges the
// message; an error leaves it unacknowledged for redelivery.
type Handler func(ctx context.Context, topic string, payload []byte) error

// Client defines the interface for bus operations.
type Client interface {
	// Connect attempts to connect to the broker.
	Connect(ctx context.Context) error

	// Publish sends a message to the given topic with at-least-once
	// delivery guarantees.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler invoked once per delivered message on
	// the topic. Subscriptions survive reconnects.
	Subscribe(topic string, handler Handler) error

	// IsConnected returns true if the client is currently connected.
	IsConnected() bool

	// Disconnect closes the connection to the broker.
	Disconnect()
}

// Config holds the configuration for the bus client.
type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	HandlerTimeout time.Duration

	ReconnectCooldown time.Duration
	ReconnectDelay    time.Duration
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
}

// DefaultConfig returns a Config with reasonable default values.
func DefaultConfig() Config {
	return Config{
		QoS:               1,
		HandlerTimeout:    30 * time.Second,
		ReconnectCooldown: 5 * time.Second,
		ReconnectDelay:    1 * time.Second,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
	}
}

// PublishEnvelope publishes an envelope on the topic derived from its type.
func PublishEnvelope(ctx context.Context, c Client, env *envelope.Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return err
	}
	return c.Publish(ctx, env.Topic(), data)
}
