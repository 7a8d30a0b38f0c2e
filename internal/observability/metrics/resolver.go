package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ResolverMetrics contains metrics for identity resolution.
type ResolverMetrics struct {
	Resolutions     *prometheus.CounterVec
	BestDistance    prometheus.Histogram
	KnownIdentities prometheus.Gauge
}

// NewResolverMetrics creates and registers resolver metrics.
func NewResolverMetrics(registry *prometheus.Registry) (*ResolverMetrics, error) {
	m := &ResolverMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register resolver metrics: %w", err)
	}
	return m, nil
}

func (m *ResolverMetrics) initMetrics() {
	m.Resolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resolver_resolutions_total",
		Help: "Total identity resolutions by outcome (matched, ambiguous_matched, new)",
	}, []string{"outcome"})
	m.BestDistance = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "resolver_best_distance",
		Help:    "Cosine distance to the best candidate per resolution",
		Buckets: prometheus.LinearBuckets(0, 0.05, 20),
	})
	m.KnownIdentities = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "resolver_known_identities",
		Help: "Number of identities in the vector index",
	})
}

// ObserveResolution records one resolution outcome and its best distance.
func (m *ResolverMetrics) ObserveResolution(outcome string, bestDistance float64) {
	m.Resolutions.WithLabelValues(outcome).Inc()
	m.BestDistance.Observe(bestDistance)
}

// SetIdentityCount updates the identity gauge.
func (m *ResolverMetrics) SetIdentityCount(n int) {
	m.KnownIdentities.Set(float64(n))
}

// Describe implements prometheus.Collector.
func (m *ResolverMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Resolutions.Describe(ch)
	m.BestDistance.Describe(ch)
	m.KnownIdentities.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *ResolverMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Resolutions.Collect(ch)
	m.BestDistance.Collect(ch)
	m.KnownIdentities.Collect(ch)
}
