// Package ygggo_geopool manages one database/sql connection pool per region
// of a geo-distributed SQL database such as CockroachDB.
//
// # Overview
//
// A Manager keeps an ordered list of regions, each with its own pool, and
// routes every connection request to the region with the lowest measured
// latency (the primary):
//   - at start every region is probed with SELECT 1 and the fastest one wins
//   - when the primary cannot hand out a connection the next region is used
//     and promoted (failover)
//   - a background loop re-probes every region and promotes a faster one
//     (failback)
//
// Connection lifetimes get ±10% jitter per pool so that connections opened
// together are not recycled together.
//
// # Quick Start
//
//	import geo "github.com/yggai/ygggo_geopool"
//
//	cfg := geo.DefaultConfig()
//	cfg.Regions = []geo.Region{
//		{Name: "us-east1", Target: "postgresql://lb.us-east1:26257/defaultdb?sslmode=require"},
//		{Name: "europe-west1", Target: "postgresql://lb.europe-west1:26257/defaultdb?sslmode=require"},
//	}
//
//	ctx := context.Background()
//	m, err := geo.New(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer m.Close()
//
//	version, err := geo.WithRetry(ctx, m, func(ctx context.Context, c *geo.Conn) (string, error) {
//		var v string
//		err := c.QueryRowContext(ctx, "select version()").Scan(&v)
//		return v, err
//	})
//
// # Retries
//
// WithRetry and Manager.Do run the work on a fresh connection per attempt,
// set the session statement timeout first, and retry errors that Classify
// reports as retryable, conflicting or read-only with a fixed backoff.
// Errors can be flagged for retry with MarkTransient.
//
// # Configuration
//
// Config can be built in code, read from YAML with LoadConfigFile, or taken
// from the environment with NewFromEnv (YGGGO_GEOPOOL_* plus CRDB_USER and
// CRDB_PASSWORD).
//
// # Observability
//
//   - structured logging with log/slog, or logrus through WithLogrus
//   - OpenTelemetry metrics and WithRetry spans
//   - otelsql driver instrumentation when Telemetry.Enabled is set
package ygggo_geopool
