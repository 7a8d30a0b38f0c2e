package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains metrics for the streaming event handlers.
type PipelineMetrics struct {
	EventsProcessed  *prometheus.CounterVec
	HandlerDuration  *prometheus.HistogramVec
	SessionsOpened   prometheus.Counter
	SessionsClosed   prometheus.Counter
	MovementsEmitted prometheus.Counter
	AnomalyUpserts   *prometheus.CounterVec
}

// NewPipelineMetrics creates and registers pipeline metrics.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.EventsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_events_processed_total",
		Help: "Total events processed by type and result (ok, rejected, failed)",
	}, []string{"type", "result"})
	m.HandlerDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_handler_duration_seconds",
		Help:    "Handler execution time by event type",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"type"})
	m.SessionsOpened = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_sessions_opened_total",
		Help: "Total presence sessions opened",
	})
	m.SessionsClosed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_sessions_closed_total",
		Help: "Total presence sessions closed",
	})
	m.MovementsEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_movements_emitted_total",
		Help: "Total movement notifications emitted for tracked identities",
	})
	m.AnomalyUpserts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_anomaly_upserts_total",
		Help: "Total anomaly episode upserts by phase",
	}, []string{"phase"})
}

// ObserveEvent records one processed event.
func (m *PipelineMetrics) ObserveEvent(eventType, result string, seconds float64) {
	m.EventsProcessed.WithLabelValues(eventType, result).Inc()
	m.HandlerDuration.WithLabelValues(eventType).Observe(seconds)
}

// Describe implements prometheus.Collector.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.EventsProcessed.Describe(ch)
	m.HandlerDuration.Describe(ch)
	m.SessionsOpened.Describe(ch)
	m.SessionsClosed.Describe(ch)
	m.MovementsEmitted.Describe(ch)
	m.AnomalyUpserts.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.EventsProcessed.Collect(ch)
	m.HandlerDuration.Collect(ch)
	m.SessionsOpened.Collect(ch)
	m.SessionsClosed.Collect(ch)
	m.MovementsEmitted.Collect(ch)
	m.AnomalyUpserts.Collect(ch)
}
