// Package observability bundles the Prometheus collectors of the streaming
// pipeline and serves them over HTTP.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/fifostream/internal/errors"
	"github.com/tphakala/fifostream/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application
type Metrics struct {
	registry *prometheus.Registry
	Stream   *metrics.StreamMetrics
	Pool     *metrics.PoolMetrics
}

// NewMetrics creates a private registry with the pipeline collectors plus
// the Go runtime and process collectors
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, wrapRegister(err, "go")
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, wrapRegister(err, "process")
	}

	streamMetrics, err := metrics.NewStreamMetrics(registry)
	if err != nil {
		return nil, wrapRegister(err, "stream")
	}

	poolMetrics, err := metrics.NewPoolMetrics(registry)
	if err != nil {
		return nil, wrapRegister(err, "pool")
	}

	return &Metrics{
		registry: registry,
		Stream:   streamMetrics,
		Pool:     poolMetrics,
	}, nil
}

func wrapRegister(err error, collector string) error {
	return errors.New(err).
		Component("observability").
		Category(errors.CategoryConfiguration).
		Context("operation", "register_collector").
		Context("collector", collector).
		Build()
}

// Registry returns the registry behind the handlers
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterHandlers registers the metrics endpoint with the provided mux
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      handlerLog{log: GetLogger()},
		ErrorHandling: promhttp.HTTPErrorOnError,
	}))
}
