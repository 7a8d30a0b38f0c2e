// Package metrics provides custom Prometheus metrics for the components of
// the Sentinel Central pipeline.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// BusMetrics contains all Prometheus metrics related to bus operations.
type BusMetrics struct {
	ConnectionStatus  prometheus.Gauge
	MessagesPublished prometheus.Counter
	MessagesReceived  *prometheus.CounterVec
	MessagesAcked     *prometheus.CounterVec
	MessagesNacked    *prometheus.CounterVec
	Errors            prometheus.Counter
	ReconnectAttempts prometheus.Counter
	PublishLatency    prometheus.Histogram
}

// NewBusMetrics creates and registers bus metrics on the given registry.
func NewBusMetrics(registry *prometheus.Registry) (*BusMetrics, error) {
	m := &BusMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register bus metrics: %w", err)
	}
	return m, nil
}

func (m *BusMetrics) initMetrics() {
	m.ConnectionStatus = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bus_connection_status",
		Help: "Current bus connection status (1 for connected, 0 for disconnected)",
	})
	m.MessagesPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bus_messages_published_total",
		Help: "Total number of messages successfully published to the bus",
	})
	m.MessagesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_messages_received_total",
		Help: "Total number of messages delivered to subscribers, by topic",
	}, []string{"topic"})
	m.MessagesAcked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_messages_acked_total",
		Help: "Total number of messages acknowledged after successful handling, by topic",
	}, []string{"topic"})
	m.MessagesNacked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_messages_nacked_total",
		Help: "Total number of messages left unacknowledged for redelivery, by topic",
	}, []string{"topic"})
	m.Errors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bus_errors_total",
		Help: "Total number of bus errors encountered",
	})
	m.ReconnectAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bus_reconnect_attempts_total",
		Help: "Total number of bus reconnection attempts",
	})
	m.PublishLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bus_publish_latency_seconds",
		Help:    "Latency of bus publish operations in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
	})
}

// UpdateConnectionStatus records the current connection state.
func (m *BusMetrics) UpdateConnectionStatus(connected bool) {
	if connected {
		m.ConnectionStatus.Set(1)
	} else {
		m.ConnectionStatus.Set(0)
	}
}

// Describe implements prometheus.Collector.
func (m *BusMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.ConnectionStatus.Describe(ch)
	m.MessagesPublished.Describe(ch)
	m.MessagesReceived.Describe(ch)
	m.MessagesAcked.Describe(ch)
	m.MessagesNacked.Describe(ch)
	m.Errors.Describe(ch)
	m.ReconnectAttempts.Describe(ch)
	m.PublishLatency.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *BusMetrics) Collect(ch chan<- prometheus.Metric) {
	m.ConnectionStatus.Collect(ch)
	m.MessagesPublished.Collect(ch)
	m.MessagesReceived.Collect(ch)
	m.MessagesAcked.Collect(ch)
	m.MessagesNacked.Collect(ch)
	m.Errors.Collect(ch)
	m.ReconnectAttempts.Collect(ch)
	m.PublishLatency.Collect(ch)
}
