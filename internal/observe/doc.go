// Package observe records authentication outcomes and request metrics.
//
// A Provider owns the OpenTelemetry MeterProvider and, when the Prometheus
// exporter is selected, a private registry served by Handler. Components take
// the Metrics interface and fall back to NopMetrics when metrics are disabled.
package observe
