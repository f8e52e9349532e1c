package ygggo_geopool

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName = "github.com/yggai/ygggo_geopool"

	reasonFailover = "failover"
	reasonFailback = "failback"
	reasonInitial  = "initial"
)

// managerMetrics holds all the metric instruments
type managerMetrics struct {
	primaryChanges metric.Int64Counter
	probeLatency   metric.Float64Histogram
	probeFailures  metric.Int64Counter
	acquireTotal   metric.Int64Counter
	retryAttempts  metric.Int64Counter
}

func newManagerMetrics(provider metric.MeterProvider) *managerMetrics {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(instrumentationName)
	m := &managerMetrics{}

	m.primaryChanges, _ = meter.Int64Counter(
		"ygggo_geopool_primary_changes_total",
		metric.WithDescription("Number of primary region promotions"),
	)
	m.probeLatency, _ = meter.Float64Histogram(
		"ygggo_geopool_probe_latency_seconds",
		metric.WithDescription("Round-trip latency of the region probe query"),
		metric.WithUnit("s"),
	)
	m.probeFailures, _ = meter.Int64Counter(
		"ygggo_geopool_probe_failures_total",
		metric.WithDescription("Number of failed region probes"),
	)
	m.acquireTotal, _ = meter.Int64Counter(
		"ygggo_geopool_acquire_total",
		metric.WithDescription("Connection acquisitions per region"),
	)
	m.retryAttempts, _ = meter.Int64Counter(
		"ygggo_geopool_retry_attempts_total",
		metric.WithDescription("Attempts made by WithRetry"),
	)
	return m
}

func (m *managerMetrics) recordPrimaryChange(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.primaryChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *managerMetrics) recordProbe(ctx context.Context, region string, latency time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("region", region))
	if err != nil {
		m.probeFailures.Add(ctx, 1, attrs)
		return
	}
	m.probeLatency.Record(ctx, latency.Seconds(), attrs)
}

func (m *managerMetrics) recordAcquire(ctx context.Context, region string, err error) {
	if m == nil {
		return
	}
	m.acquireTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("region", region),
		attribute.String("status", status(err)),
	))
}

func (m *managerMetrics) recordAttempt(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.retryAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
