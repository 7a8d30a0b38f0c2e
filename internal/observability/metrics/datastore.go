package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// DatastoreMetrics contains metrics for database operations.
type DatastoreMetrics struct {
	QueryDuration prometheus.Histogram
	QueryErrors   prometheus.Counter
	SlowQueries   prometheus.Counter
}

// NewDatastoreMetrics creates and registers datastore metrics.
func NewDatastoreMetrics(registry *prometheus.Registry) (*DatastoreMetrics, error) {
	m := &DatastoreMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register datastore metrics: %w", err)
	}
	return m, nil
}

func (m *DatastoreMetrics) initMetrics() {
	m.QueryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "datastore_query_duration_seconds",
		Help:    "Database query execution time",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})
	m.QueryErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "datastore_query_errors_total",
		Help: "Total failed database queries, not counting record-not-found",
	})
	m.SlowQueries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "datastore_slow_queries_total",
		Help: "Total queries exceeding the slow query threshold",
	})
}

// ObserveQuery records one completed query.
func (m *DatastoreMetrics) ObserveQuery(seconds float64, failed, slow bool) {
	m.QueryDuration.Observe(seconds)
	if failed {
		m.QueryErrors.Inc()
	}
	if slow {
		m.SlowQueries.Inc()
	}
}

// Describe implements prometheus.Collector.
func (m *DatastoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.QueryDuration.Describe(ch)
	m.QueryErrors.Describe(ch)
	m.SlowQueries.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *DatastoreMetrics) Collect(ch chan<- prometheus.Metric) {
	m.QueryDuration.Collect(ch)
	m.QueryErrors.Collect(ch)
	m.SlowQueries.Collect(ch)
}
