package ygggo_geopool

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/XSAM/otelsql"
)

// lifetimeJitter is the half-width of the symmetric band applied to MaxLifetime.
const lifetimeJitter = 0.10

// Pool is the connection pool of a single region.
type Pool struct {
	region   Region
	db       *sql.DB
	dialect  dialect
	cfg      PoolConfig
	lifetime time.Duration

	closeOnce sync.Once
	closed    atomic.Bool

	acquired atomic.Int64
	failed   atomic.Int64
}

// jitteredLifetime returns base × (1 + U(-0.10, +0.10)) so pools opened
// together do not recycle their connections in the same instant.
func jitteredLifetime(base time.Duration, rnd *rand.Rand) time.Duration {
	if base <= 0 {
		return base
	}
	var u float64
	if rnd != nil {
		u = rnd.Float64()
	} else {
		u = rand.Float64()
	}
	return base + time.Duration(float64(base)*(u*2-1)*lifetimeJitter)
}

func newPool(cfg Config, region Region, d dialect, otelOpts []otelsql.Option, rnd *rand.Rand) (*Pool, error) {
	db, err := d.open(cfg, region, otelOpts)
	if err != nil {
		return nil, err
	}
	return newPoolFromDB(region, db, d, cfg.Pool, rnd), nil
}

func newPoolFromDB(region Region, db *sql.DB, d dialect, cfg PoolConfig, rnd *rand.Rand) *Pool {
	p := &Pool{
		region:   region,
		db:       db,
		dialect:  d,
		cfg:      cfg,
		lifetime: jitteredLifetime(cfg.MaxLifetime, rnd),
	}
	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetMaxIdleConns(cfg.MaxOpen)
	db.SetConnMaxIdleTime(cfg.IdleTimeout)
	db.SetConnMaxLifetime(p.lifetime)
	return p
}

// Region returns the region this pool serves.
func (p *Pool) Region() Region { return p.region }

// Lifetime returns the jittered per-connection max lifetime.
func (p *Pool) Lifetime() time.Duration { return p.lifetime }

// Acquire gets a connection, waiting at most AcquireTimeout.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	if p == nil || p.db == nil {
		return nil, errors.New("nil pool")
	}
	if p.closed.Load() {
		return nil, ErrClosed
	}
	actx := ctx
	if p.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
		defer cancel()
	}
	c, err := p.db.Conn(actx)
	if err != nil {
		p.failed.Add(1)
		return nil, err
	}
	p.acquired.Add(1)
	return &Conn{inner: c, pool: p, acquiredAt: time.Now()}, nil
}

// WithConn acquires a connection, calls fn, and always returns the connection.
func (p *Pool) WithConn(ctx context.Context, fn func(*Conn) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}

// warmUp opens n connections and hands them back to the idle set.
func (p *Pool) warmUp(ctx context.Context, n int) error {
	conns := make([]*Conn, 0, n)
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()
	for i := 0; i < n; i++ {
		c, err := p.Acquire(ctx)
		if err != nil {
			return err
		}
		conns = append(conns, c)
	}
	return nil
}

// Close releases every connection of the pool. Only the first call does work.
func (p *Pool) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		err = p.db.Close()
	})
	return err
}

// PoolStats is a snapshot of one regional pool.
type PoolStats struct {
	Region            string        `json:"region"`
	OpenConnections   int           `json:"open_connections"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	MaxOpen           int           `json:"max_open"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
	MaxIdleTimeClosed int64         `json:"max_idle_time_closed"`
	Lifetime          time.Duration `json:"lifetime"`
	Acquired          int64         `json:"acquired"`
	FailedAcquires    int64         `json:"failed_acquires"`
}

// Stats returns current pool statistics
func (p *Pool) Stats() PoolStats {
	s := p.db.Stats()
	return PoolStats{
		Region:            p.region.Name,
		OpenConnections:   s.OpenConnections,
		InUse:             s.InUse,
		Idle:              s.Idle,
		MaxOpen:           s.MaxOpenConnections,
		WaitCount:         s.WaitCount,
		WaitDuration:      s.WaitDuration,
		MaxLifetimeClosed: s.MaxLifetimeClosed,
		MaxIdleTimeClosed: s.MaxIdleTimeClosed,
		Lifetime:          p.lifetime,
		Acquired:          p.acquired.Load(),
		FailedAcquires:    p.failed.Load(),
	}
}
