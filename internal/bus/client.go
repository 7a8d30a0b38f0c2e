// client.go: MQTT implementation of the bus Client interface.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sentinelvision/sentinel-central/internal/conf"
	"github.com/sentinelvision/sentinel-central/internal/logging"
	"github.com/sentinelvision/sentinel-central/internal/observability/metrics"
)

// client implements the Client interface over paho MQTT.
type client struct {
	config          Config
	internalClient  mqtt.Client
	lastConnAttempt time.Time
	mu              sync.Mutex

	subMu         sync.Mutex
	subscriptions map[string]Handler

	reconnectTimer *time.Timer
	reconnectStop  chan struct{}
	stopOnce       sync.Once

	metrics *metrics.BusMetrics
	log     *slog.Logger
}

// NewClient creates a bus client from the application settings.
func NewClient(settings *conf.Settings, busMetrics *metrics.BusMetrics) Client {
	cfg := DefaultConfig()
	cfg.Broker = settings.Bus.Broker
	cfg.ClientID = settings.Main.Name
	cfg.Username = settings.Bus.Username
	cfg.Password = settings.Bus.Password
	if settings.Bus.QoS > 0 {
		cfg.QoS = byte(settings.Bus.QoS)
	}
	if settings.Bus.HandlerTimeout > 0 {
		cfg.HandlerTimeout = settings.Bus.HandlerTimeout
	}
	return &client{
		config:        cfg,
		subscriptions: make(map[string]Handler),
		reconnectStop: make(chan struct{}),
		metrics:       busMetrics,
		log:           logging.ForService("bus"),
	}
}

// Connect attempts to establish a connection to the broker. The broker
// hostname is resolved first so DNS problems surface as such.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Since(c.lastConnAttempt) < c.config.ReconnectCooldown {
		return fmt.Errorf("connection attempt too recent, last attempt was %v ago", time.Since(c.lastConnAttempt))
	}
	c.lastConnAttempt = time.Now()

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return fmt.Errorf("invalid broker URL: %w", err)
	}
	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return fmt.Errorf("failed to resolve broker hostname %s: %w", host, err)
		}
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	// Persistent session so the broker queues QoS 1 messages while this
	// consumer is away.
	opts.SetCleanSession(false)
	opts.SetAutoReconnect(true)
	// Acks are issued manually after the handler succeeds.
	opts.SetAutoAckDisabled(true)
	opts.SetOrderMatters(false)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.internalClient = mqtt.NewClient(opts)

	token := c.internalClient.Connect()
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		return fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connection error: %w", err)
	}

	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(true)
	}
	return nil
}

// Publish sends a message to the given topic at the configured QoS.
func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	if !c.IsConnected() {
		return fmt.Errorf("not connected to broker")
	}

	start := time.Now()
	token := c.internalClient.Publish(topic, c.config.QoS, false, payload)
	if !token.WaitTimeout(c.config.PublishTimeout) {
		if c.metrics != nil {
			c.metrics.Errors.Inc()
		}
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		if c.metrics != nil {
			c.metrics.Errors.Inc()
		}
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	if c.metrics != nil {
		c.metrics.MessagesPublished.Inc()
		c.metrics.PublishLatency.Observe(time.Since(start).Seconds())
	}
	c.log.Debug("published message", "topic", topic, "bytes", len(payload))
	return nil
}

// Subscribe registers a handler for a topic. The handler runs in its own
// goroutine with a bounded deadline; the message is acked only when it
// returns nil.
func (c *client) Subscribe(topic string, handler Handler) error {
	c.subMu.Lock()
	c.subscriptions[topic] = handler
	c.subMu.Unlock()

	if c.internalClient != nil && c.internalClient.IsConnected() {
		return c.subscribeToBroker(topic, handler)
	}
	return nil
}

func (c *client) subscribeToBroker(topic string, handler Handler) error {
	token := c.internalClient.Subscribe(topic, c.config.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		go c.dispatch(topic, handler, msg)
	})
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	c.log.Info("subscribed", "topic", topic)
	return nil
}

// dispatch runs one handler invocation with a bounded deadline and acks
// on success. Unacked messages are redelivered by the broker, so a handler
// error here is deliberate back-pressure, not a dropped message.
func (c *client) dispatch(topic string, handler Handler, msg mqtt.Message) {
	if c.metrics != nil {
		c.metrics.MessagesReceived.WithLabelValues(topic).Inc()
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.config.HandlerTimeout)
	defer cancel()

	if err := handler(ctx, topic, msg.Payload()); err != nil {
		c.log.Error("handler failed, message left for redelivery",
			"topic", topic, "message_id", msg.MessageID(), "error", err)
		if c.metrics != nil {
			c.metrics.MessagesNacked.WithLabelValues(topic).Inc()
		}
		return
	}

	msg.Ack()
	if c.metrics != nil {
		c.metrics.MessagesAcked.WithLabelValues(topic).Inc()
	}
}

// IsConnected returns true if the client is currently connected.
func (c *client) IsConnected() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection to the broker.
func (c *client) Disconnect() {
	if c.internalClient != nil && c.internalClient.IsConnected() {
		c.internalClient.Disconnect(250)
		if c.metrics != nil {
			c.metrics.UpdateConnectionStatus(false)
		}
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.stopOnce.Do(func() { close(c.reconnectStop) })
}

func (c *client) onConnect(_ mqtt.Client) {
	c.log.Info("connected to broker", "broker", c.config.Broker)
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(true)
	}

	// Re-establish subscriptions after any (re)connect.
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for topic, handler := range c.subscriptions {
		if err := c.subscribeToBroker(topic, handler); err != nil {
			c.log.Error("failed to resubscribe", "topic", topic, "error", err)
		}
	}
}

func (c *client) onConnectionLost(_ mqtt.Client, err error) {
	c.log.Warn("connection to broker lost", "broker", c.config.Broker, "error", err)
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(false)
		c.metrics.Errors.Inc()
	}
	c.startReconnectTimer()
}

func (c *client) startReconnectTimer() {
	c.reconnectTimer = time.AfterFunc(c.config.ReconnectDelay, func() {
		select {
		case <-c.reconnectStop:
			return
		default:
			c.reconnectWithBackoff()
		}
	})
}

func (c *client) reconnectWithBackoff() {
	backoff := time.Second
	maxBackoff := 5 * time.Minute

	for {
		if c.metrics != nil {
			c.metrics.ReconnectAttempts.Inc()
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.config.ConnectTimeout)
		err := c.Connect(ctx)
		cancel()

		if err == nil {
			c.log.Info("reconnected to broker")
			return
		}
		c.log.Warn("failed to reconnect to broker", "error", err, "retry_in", backoff)

		select {
		case <-time.After(backoff):
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		case <-c.reconnectStop:
			return
		}
	}
}
