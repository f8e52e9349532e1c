package ygggo_geopool

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// probeFunc measures one round trip against a pool.
type probeFunc func(ctx context.Context, a Acquirer) (time.Duration, error)

// probeResult is one latency sample. A non-nil err means the region is unreachable.
type probeResult struct {
	region  string
	latency time.Duration
	err     error
}

// prober measures every region and picks the fastest one.
type prober struct {
	registry *registry
	pools    *poolSet
	timeout  time.Duration
	probe    probeFunc
	logger   *slog.Logger
	metrics  *managerMetrics
}

// measureLatency times acquisition plus a trivial query, then releases the connection.
func measureLatency(ctx context.Context, a Acquirer) (time.Duration, error) {
	start := time.Now()
	conn, err := a.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	var one int
	if err := conn.QueryRowContext(ctx, probeQuery).Scan(&one); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// probeRegion never fails; errors are carried in the result.
func (pr *prober) probeRegion(ctx context.Context, name string) probeResult {
	pool, err := pr.pools.get(name)
	if err != nil {
		return probeResult{region: name, err: err}
	}
	pctx, cancel := context.WithTimeout(ctx, pr.timeout)
	defer cancel()

	latency, err := pr.probe(pctx, pool)
	pr.logProbe(ctx, name, latency, err)
	pr.metrics.recordProbe(ctx, name, latency, err)
	return probeResult{region: name, latency: latency, err: err}
}

// probeAll returns the region with the strictly lowest latency; ties keep
// registry order. When every probe fails it returns fallback.
func (pr *prober) probeAll(ctx context.Context, fallback string) string {
	best := fallback
	bestLatency := time.Duration(math.MaxInt64)
	for _, name := range pr.registry.Names() {
		if ctx.Err() != nil {
			break
		}
		res := pr.probeRegion(ctx, name)
		if res.err != nil {
			continue
		}
		if res.latency < bestLatency {
			bestLatency = res.latency
			best = res.region
		}
	}
	return best
}
