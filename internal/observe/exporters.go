// ABOUTME: Factory for OpenTelemetry metric readers by exporter name
// ABOUTME: Supports prometheus, stdout and none

package observe

import (
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Exporter names accepted by NewMetricsReader.
const (
	ExporterPrometheus = "prometheus"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"
)

// ValidExporter reports whether name is a known metrics exporter. Empty means none.
func ValidExporter(name string) bool {
	switch name {
	case ExporterPrometheus, ExporterStdout, ExporterNone, "":
		return true
	}
	return false
}

// NewMetricsReader creates a metrics reader for the named exporter. The
// Prometheus exporter registers its collector with reg.
func NewMetricsReader(name string, reg prometheus.Registerer) (sdkmetric.Reader, error) {
	switch name {
	case ExporterPrometheus:
		exp, err := otelprom.New(otelprom.WithRegisterer(reg))
		if err != nil {
			return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
		}
		return exp, nil

	case ExporterStdout:
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stdout))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout metrics exporter: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exp), nil

	case ExporterNone, "":
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(io.Discard))
		if err != nil {
			return nil, err
		}
		return sdkmetric.NewPeriodicReader(exp), nil

	default:
		return nil, fmt.Errorf("unknown metrics exporter: %q", name)
	}
}
