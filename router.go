package ygggo_geopool

import (
	"context"
	"errors"
	"fmt"
)

// Acquire returns a connection from the primary region, falling back to the
// other regions in registry order. When the primary cannot hand out a
// connection the next candidate is promoted. If every region fails the
// error wraps ErrAllPoolsUnavailable and the first acquisition error.
func (m *Manager) Acquire(ctx context.Context) (*Conn, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}

	order := m.registry.candidates(m.primary.current())
	var first error
	for i, name := range order {
		conn, err := m.acquireFrom(ctx, name)
		if err == nil {
			return conn, nil
		}
		// A cancelled caller says nothing about the region's health.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// Pools closed under us by Close are not an outage.
		if errors.Is(err, ErrClosed) || m.closed.Load() {
			return nil, ErrClosed
		}
		if first == nil {
			first = err
		}
		m.logPoolUnavailable(ctx, name, err)

		if i+1 < len(order) && m.primary.compareAndSwap(name, order[i+1]) {
			m.metrics.recordPrimaryChange(ctx, reasonFailover)
			m.logPrimaryChange(ctx, reasonFailover, name, order[i+1])
		}
	}

	if first == nil {
		return nil, ErrAllPoolsUnavailable
	}
	return nil, fmt.Errorf("%w: %w", ErrAllPoolsUnavailable, first)
}

func (m *Manager) acquireFrom(ctx context.Context, name string) (*Conn, error) {
	pool, err := m.pools.get(name)
	if err != nil {
		return nil, err
	}
	conn, err := pool.Acquire(ctx)
	m.metrics.recordAcquire(ctx, name, err)
	return conn, err
}
