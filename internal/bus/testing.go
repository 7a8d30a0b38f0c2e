// testing.go: in-process bus implementation for tests and local wiring.
package bus

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Client delivering published messages
// synchronously to subscribers on the same topic. It preserves the
// at-least-once contract surface (a handler error is reported to the
// publisher) without a broker, which is what the pipeline tests need.
type MemoryBus struct {
	mu        sync.Mutex
	handlers  map[string][]Handler
	published []Message
	connected bool
}

// Message records one published message.
type Message struct {
	Topic   string
	Payload []byte
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[string][]Handler), connected: true}
}

// Connect implements Client.
func (b *MemoryBus) Connect(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	return nil
}

// Publish records the message and delivers it synchronously to all
// subscribers of the topic. The first handler error is returned.
func (b *MemoryBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	b.published = append(b.published, Message{Topic: topic, Payload: payload})
	handlers := append([]Handler(nil), b.handlers[topic]...)
	b.mu.Unlock()

	for _, h := range handlers {
		if err := h(ctx, topic, payload); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe implements Client.
func (b *MemoryBus) Subscribe(topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], handler)
	return nil
}

// IsConnected implements Client.
func (b *MemoryBus) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// Disconnect implements Client.
func (b *MemoryBus) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
}

// Published returns a copy of all messages published so far, optionally
// filtered by topic. An empty topic returns everything.
func (b *MemoryBus) Published(topic string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	if topic == "" {
		return append([]Message(nil), b.published...)
	}
	var out []Message
	for _, m := range b.published {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}
