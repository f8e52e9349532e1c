package ygggo_geopool

import (
	"context"
	"fmt"
	"time"
)

// HealthStatus is the outcome of one health check against a regional pool.
type HealthStatus struct {
	Region            string        `json:"region"`
	Primary           bool          `json:"primary"`
	Healthy           bool          `json:"healthy"`
	LastChecked       time.Time     `json:"last_checked"`
	ResponseTime      time.Duration `json:"response_time"`
	ConnectionsActive int           `json:"connections_active"`
	ConnectionsIdle   int           `json:"connections_idle"`
	ConnectionsMax    int           `json:"connections_max"`
	Errors            []HealthError `json:"errors,omitempty"`
}

// HealthError represents a health check error
type HealthError struct {
	Type        string    `json:"type"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	Recoverable bool      `json:"recoverable"`
}

// HealthCheck acquires a connection, pings it and runs the probe query,
// bounded by timeout. Failures are reported in the status, not as an error.
func (p *Pool) HealthCheck(ctx context.Context, timeout time.Duration) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{
		Region:      p.region.Name,
		LastChecked: start,
	}

	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.checkConn(hctx); err != nil {
		status.Errors = append(status.Errors, HealthError{
			Type:        "connectivity",
			Message:     err.Error(),
			Timestamp:   time.Now(),
			Recoverable: IsTransient(err) || hctx.Err() != nil,
		})
	}

	s := p.db.Stats()
	status.ConnectionsActive = s.InUse
	status.ConnectionsIdle = s.Idle
	status.ConnectionsMax = s.MaxOpenConnections
	status.ResponseTime = time.Since(start)
	status.Healthy = len(status.Errors) == 0
	return status
}

func (p *Pool) checkConn(ctx context.Context) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	defer conn.Close()

	if err := conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	var one int
	if err := conn.QueryRowContext(ctx, probeQuery).Scan(&one); err != nil {
		return fmt.Errorf("probe query: %w", err)
	}
	return nil
}

// HealthCheck checks every region in registry order. The primary is not
// changed by a health check.
func (m *Manager) HealthCheck(ctx context.Context) ([]HealthStatus, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	primary := m.Primary()
	out := make([]HealthStatus, 0, m.registry.Len())
	for _, name := range m.registry.Names() {
		p, err := m.pools.get(name)
		if err != nil {
			return nil, err
		}
		status := p.HealthCheck(ctx, m.cfg.ProbeTimeout)
		status.Primary = name == primary
		out = append(out, *status)
	}
	return out, nil
}
