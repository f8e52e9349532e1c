package ygggo_geopool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetrics_FailoverAndAcquire(t *testing.T) {
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))

	b, _ := mockRegion(t, "b")
	m := buildManager(t, testConfig(downRegion("a"), b), WithMeterProvider(provider))

	conn, err := m.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	assert.Equal(t, int64(1), counterValue(t, reader, "ygggo_geopool_primary_changes_total",
		attribute.String("reason", reasonFailover)))
	assert.Equal(t, int64(1), counterValue(t, reader, "ygggo_geopool_acquire_total",
		attribute.String("region", "a"), attribute.String("status", "error")))
	assert.Equal(t, int64(1), counterValue(t, reader, "ygggo_geopool_acquire_total",
		attribute.String("region", "b"), attribute.String("status", "success")))
}

func TestMetrics_ProbeLatencyAndFailures(t *testing.T) {
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))

	fake := newFakeLatencies(map[string]time.Duration{"a": 15 * time.Millisecond})
	fake.fail("b")
	cfg := testConfig(downRegion("a"), downRegion("b"))
	cfg.ReprobeInterval = time.Hour
	startWithProbe(t, cfg, fake.probe, WithMeterProvider(provider))

	assert.Equal(t, int64(1), counterValue(t, reader, "ygggo_geopool_probe_failures_total",
		attribute.String("region", "b")))
	assert.Equal(t, int64(1), counterValue(t, reader, "ygggo_geopool_primary_changes_total",
		attribute.String("reason", reasonInitial)))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var found bool
	for _, sm := range rm.ScopeMetrics {
		for _, mt := range sm.Metrics {
			if mt.Name != "ygggo_geopool_probe_latency_seconds" {
				continue
			}
			hist, ok := mt.Data.(metricdata.Histogram[float64])
			require.True(t, ok)
			require.Len(t, hist.DataPoints, 1)
			assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
			assert.InDelta(t, 0.015, hist.DataPoints[0].Sum, 1e-9)
			found = true
		}
	}
	assert.True(t, found, "probe latency histogram recorded")
}

func TestMetrics_RetryOutcomes(t *testing.T) {
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))

	a, _ := mockRegion(t, "a")
	cfg := testConfig(a)
	cfg.Retry.MaxAttempts = 5
	m := buildManager(t, cfg, WithMeterProvider(provider))

	calls := 0
	require.NoError(t, m.Do(context.Background(), func(ctx context.Context, c *Conn) error {
		calls++
		if calls < 3 {
			return MarkTransient(errFlaky)
		}
		return nil
	}))
	_ = m.Do(context.Background(), func(ctx context.Context, c *Conn) error { return errFatal })

	assert.Equal(t, int64(2), counterValue(t, reader, "ygggo_geopool_retry_attempts_total", attribute.String("outcome", outcomeRetry)))
	assert.Equal(t, int64(1), counterValue(t, reader, "ygggo_geopool_retry_attempts_total", attribute.String("outcome", outcomeSuccess)))
	assert.Equal(t, int64(1), counterValue(t, reader, "ygggo_geopool_retry_attempts_total", attribute.String("outcome", outcomePermanent)))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *managerMetrics
	ctx := context.Background()
	m.recordPrimaryChange(ctx, reasonFailover)
	m.recordProbe(ctx, "a", time.Millisecond, nil)
	m.recordAcquire(ctx, "a", nil)
	m.recordAttempt(ctx, outcomeRetry)
}
