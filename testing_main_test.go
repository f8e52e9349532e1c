package ygggo_geopool

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

var (
	mockSeq       atomic.Int64
	errRegionDown = errors.New("region down")
)

// mockRegion registers a sqlmock connection and returns a region whose
// target is its DSN.
func mockRegion(t *testing.T, name string) (Region, sqlmock.Sqlmock) {
	t.Helper()
	dsn := fmt.Sprintf("geopool_%s_%d", name, mockSeq.Add(1))
	_, mock, err := sqlmock.NewWithDSN(dsn)
	require.NoError(t, err)
	return Region{Name: name, Target: dsn}, mock
}

// downRegion points at a DSN sqlmock has never registered, so every
// connection attempt fails.
func downRegion(name string) Region {
	return Region{Name: name, Target: fmt.Sprintf("geopool_down_%s_%d", name, mockSeq.Add(1))}
}

func expectProbe(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(regexp.QuoteMeta(probeQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
}

func testConfig(regions ...Region) Config {
	cfg := DefaultConfig()
	cfg.Driver = "sqlmock"
	cfg.Regions = regions
	cfg.Pool.WarmUp = false
	cfg.Pool.AcquireTimeout = time.Second
	cfg.ProbeTimeout = time.Second
	cfg.Retry.Backoff = time.Millisecond
	cfg.Retry.StatementTimeout = 0
	cfg.Logging.Enabled = false
	return cfg
}

// buildManager creates a manager without the start-up probe and re-prober.
// The primary is the first region.
func buildManager(t *testing.T, cfg Config, opts ...Option) *Manager {
	t.Helper()
	m, err := build(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// startWithProbe builds a manager whose latency probe is replaced by probe,
// then runs the start-up probe and launches the re-prober.
func startWithProbe(t *testing.T, cfg Config, probe probeFunc, opts ...Option) *Manager {
	t.Helper()
	m := buildManager(t, cfg, opts...)
	m.prober.probe = probe
	m.start(context.Background())
	return m
}

// fakeLatencies serves probe results per region name.
type fakeLatencies struct {
	mu      sync.Mutex
	latency map[string]time.Duration
	down    map[string]bool
	calls   map[string]int
}

func newFakeLatencies(latency map[string]time.Duration) *fakeLatencies {
	return &fakeLatencies{latency: latency, down: map[string]bool{}, calls: map[string]int{}}
}

func (f *fakeLatencies) set(region string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latency[region] = d
	delete(f.down, region)
}

func (f *fakeLatencies) fail(region string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down[region] = true
}

func (f *fakeLatencies) callCount(region string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[region]
}

func (f *fakeLatencies) probe(_ context.Context, a Acquirer) (time.Duration, error) {
	name := a.(*Pool).Region().Name
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	if f.down[name] {
		return 0, errRegionDown
	}
	return f.latency[name], nil
}

// counterValue sums the data points of an int64 counter whose attributes
// include attrs.
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				if hasAttributes(dp.Attributes, attrs) {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func hasAttributes(set attribute.Set, attrs []attribute.KeyValue) bool {
	for _, kv := range attrs {
		v, ok := set.Value(kv.Key)
		if !ok || v.Emit() != kv.Value.Emit() {
			return false
		}
	}
	return true
}
