// ABOUTME: Metrics interface and its OpenTelemetry implementation
// ABOUTME: Counts authentication outcomes and HTTP requests with durations

package observe

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Authentication outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// Metrics records server metrics.
//
// Implementations must be safe for concurrent use and must not panic.
type Metrics interface {
	// RecordAuth records one credential check. method is "session",
	// "api_key" or "password".
	RecordAuth(ctx context.Context, method, outcome string)

	// RecordRequest records a finished HTTP request.
	RecordRequest(ctx context.Context, method, route string, status int, duration time.Duration)
}

// otelMetrics is the OpenTelemetry implementation of Metrics.
type otelMetrics struct {
	authCount    metric.Int64Counter
	requestCount metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
}

// NewMetrics creates Metrics instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	authCount, err := meter.Int64Counter(
		"timechamp.auth.attempts",
		metric.WithDescription("Credential checks by method and outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	requestCount, err := meter.Int64Counter(
		"timechamp.http.requests",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"timechamp.http.errors",
		metric.WithDescription("HTTP requests answered with a 5xx status"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"timechamp.http.duration_ms",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		authCount:    authCount,
		requestCount: requestCount,
		errorCount:   errorCount,
		durationHist: durationHist,
	}, nil
}

func (m *otelMetrics) RecordAuth(ctx context.Context, method, outcome string) {
	m.authCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("auth.method", method),
		attribute.String("auth.outcome", outcome),
	))
}

func (m *otelMetrics) RecordRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	opt := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.String("http.status_code", strconv.Itoa(status)),
	)

	m.requestCount.Add(ctx, 1, opt)
	if status >= 500 {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Microseconds())/1000, opt)
}

// NopMetrics returns Metrics that discard everything.
func NopMetrics() Metrics {
	return nopMetrics{}
}

type nopMetrics struct{}

func (nopMetrics) RecordAuth(context.Context, string, string) {}

func (nopMetrics) RecordRequest(context.Context, string, string, int, time.Duration) {}
