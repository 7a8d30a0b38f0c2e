// Package observability provides metrics and monitoring capabilities for
// the Sentinel Central server.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sentinelvision/sentinel-central/internal/observability/metrics"
)

// Metrics holds all metric collectors for the application.
type Metrics struct {
	registry  *prometheus.Registry
	Bus       *metrics.BusMetrics
	Resolver  *metrics.ResolverMetrics
	Pipeline  *metrics.PipelineMetrics
	Datastore *metrics.DatastoreMetrics
}

// NewMetrics creates a new Metrics instance, initializing all collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	busMetrics, err := metrics.NewBusMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create bus metrics: %w", err)
	}
	resolverMetrics, err := metrics.NewResolverMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver metrics: %w", err)
	}
	pipelineMetrics, err := metrics.NewPipelineMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}
	datastoreMetrics, err := metrics.NewDatastoreMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create datastore metrics: %w", err)
	}

	return &Metrics{
		registry:  registry,
		Bus:       busMetrics,
		Resolver:  resolverMetrics,
		Pipeline:  pipelineMetrics,
		Datastore: datastoreMetrics,
	}, nil
}

// Handler returns an HTTP handler exposing the registry in Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
