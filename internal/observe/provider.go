// ABOUTME: Provider owning the MeterProvider and the Prometheus registry
// ABOUTME: Exposes Metrics for components and an HTTP handler for scraping

package observe

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Config configures a Provider.
type Config struct {
	ServiceName string
	Version     string
	Exporter    string // prometheus|stdout|none
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return errors.New("service name is required")
	}
	if !ValidExporter(c.Exporter) {
		return fmt.Errorf("unknown metrics exporter: %q", c.Exporter)
	}
	return nil
}

// Provider holds the metrics pipeline for one process.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
	registry      *prometheus.Registry
	metrics       Metrics
}

// NewProvider builds the metrics pipeline described by cfg.
func NewProvider(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.Version),
	)

	registry := prometheus.NewRegistry()
	reader, err := NewMetricsReader(cfg.Exporter, registry)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)

	metrics, err := NewMetrics(mp.Meter(cfg.ServiceName))
	if err != nil {
		_ = mp.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to create instruments: %w", err)
	}

	p := &Provider{meterProvider: mp, metrics: metrics}
	if cfg.Exporter == ExporterPrometheus {
		p.registry = registry
	}
	return p, nil
}

// Metrics returns the instruments backed by this provider.
func (p *Provider) Metrics() Metrics {
	return p.metrics
}

// Handler serves the Prometheus exposition format. It returns nil unless the
// Prometheus exporter is active.
func (p *Provider) Handler() http.Handler {
	if p.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.meterProvider.Shutdown(ctx)
}
