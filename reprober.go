package ygggo_geopool

import (
	"context"
	"time"
)

// reprobeLoop re-measures every region each ReprobeInterval and promotes a
// faster region. It exits when ctx is cancelled.
func (m *Manager) reprobeLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.ReprobeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reprobe(ctx)
		}
	}
}

// reprobe runs one probe round and returns the primary afterwards.
func (m *Manager) reprobe(ctx context.Context) string {
	current := m.primary.current()
	best := m.prober.probeAll(ctx, current)
	// A round cut short by shutdown must not promote a partial winner.
	if ctx.Err() != nil || best == current {
		return m.primary.current()
	}
	if m.primary.compareAndSwap(current, best) {
		m.metrics.recordPrimaryChange(ctx, reasonFailback)
		m.logPrimaryChange(ctx, reasonFailback, current, best)
	}
	return m.primary.current()
}

// Reprobe runs a probe round immediately instead of waiting for the next
// tick and returns the resulting primary region.
func (m *Manager) Reprobe(ctx context.Context) (string, error) {
	if m.closed.Load() {
		return "", ErrClosed
	}
	return m.reprobe(ctx), nil
}
