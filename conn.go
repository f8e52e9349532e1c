package ygggo_geopool

import (
	"context"
	"database/sql"
	"time"
)

// Conn wraps a single connection obtained from a regional pool.
// It must be closed to return the connection back to its pool.
type Conn struct {
	inner      *sql.Conn
	pool       *Pool
	acquiredAt time.Time
}

// Region returns the name of the region the connection belongs to.
func (c *Conn) Region() string { return c.pool.region.Name }

// HeldFor reports how long the connection has been borrowed.
func (c *Conn) HeldFor() time.Duration { return time.Since(c.acquiredAt) }

// Raw exposes the underlying *sql.Conn.
func (c *Conn) Raw() *sql.Conn { return c.inner }

func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.inner.ExecContext(ctx, query, args...)
}

func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.inner.QueryContext(ctx, query, args...)
}

func (c *Conn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.inner.QueryRowContext(ctx, query, args...)
}

func (c *Conn) PingContext(ctx context.Context) error {
	return c.inner.PingContext(ctx)
}

// setStatementTimeout applies the per-session statement timeout in the
// dialect of the connection's driver.
func (c *Conn) setStatementTimeout(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	_, err := c.inner.ExecContext(ctx, c.pool.dialect.sessionTimeout(d))
	return err
}

// Close returns the connection to the pool.
func (c *Conn) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	return c.inner.Close()
}
