package ygggo_geopool

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Manager routes connections across regional pools. It keeps one pool per
// region, prefers the lowest-latency region, fails over when the primary
// cannot hand out a connection and fails back when a periodic probe finds a
// faster region.
type Manager struct {
	cfg      Config
	registry *registry
	pools    *poolSet
	primary  primarySelector
	prober   *prober

	logger  *slog.Logger
	metrics *managerMetrics
	tracer  trace.Tracer

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
}

// Option customizes a Manager.
type Option func(*options)

type options struct {
	logger         *slog.Logger
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	rnd            *rand.Rand
}

// WithLogger sets the logger, overriding Config.Logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLogrus routes the manager's logs through a logrus logger.
func WithLogrus(l *logrus.Logger) Option {
	return func(o *options) { o.logger = slog.New(NewLogrusHandler(l)) }
}

// WithMeterProvider sets the OpenTelemetry meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithRand sets the random source used for connection lifetime jitter.
func WithRand(r *rand.Rand) Option {
	return func(o *options) { o.rnd = r }
}

// New builds one pool per region, probes every region to choose the
// primary, and starts the background re-prober. It fails with an ErrConfig
// error when the region list is empty or has duplicate names.
func New(ctx context.Context, cfg Config, opts ...Option) (*Manager, error) {
	m, err := build(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	m.start(ctx)
	return m, nil
}

// NewFromEnv loads the file named by YGGGO_GEOPOOL_CONFIG (if set), applies
// environment overrides and calls New.
func NewFromEnv(ctx context.Context, opts ...Option) (*Manager, error) {
	cfg := DefaultConfig()
	if path := os.Getenv(EnvConfigFile); path != "" {
		var err error
		if cfg, err = LoadConfigFile(path); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	return New(ctx, cfg, opts...)
}

// build creates the registry and the pools without probing.
func build(ctx context.Context, cfg Config, opts ...Option) (*Manager, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	reg, err := newRegistry(cfg.Regions)
	if err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:      cfg,
		registry: reg,
		pools:    newPoolSet(),
		logger:   o.logger,
		metrics:  newManagerMetrics(o.meterProvider),
		tracer:   newTracer(o.tracerProvider),
	}
	if m.logger == nil {
		m.logger = newLogger(cfg.Logging)
	}

	d := dialectFor(cfg.Driver)
	for _, region := range reg.Regions() {
		p, err := newPool(cfg, region, d, otelsqlOptions(cfg, region, o.tracerProvider, o.meterProvider), o.rnd)
		if err != nil {
			m.pools.closeAll()
			return nil, fmt.Errorf("build pool for region %s: %w", region.Name, err)
		}
		if err := m.pools.add(p); err != nil {
			p.Close()
			m.pools.closeAll()
			return nil, err
		}
		if cfg.Pool.WarmUp && cfg.Pool.MinIdle > 0 {
			if err := p.warmUp(ctx, cfg.Pool.MinIdle); err != nil {
				m.logger.LogAttrs(ctx, slog.LevelWarn, "pool warm-up failed",
					slog.String("region", region.Name),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	m.prober = &prober{
		registry: reg,
		pools:    m.pools,
		timeout:  cfg.ProbeTimeout,
		probe:    measureLatency,
		logger:   m.logger,
		metrics:  m.metrics,
	}
	m.primary.set(reg.First().Name)
	return m, nil
}

// start runs the initial probe and launches the re-prober.
func (m *Manager) start(ctx context.Context) {
	first := m.primary.current()
	best := m.prober.probeAll(ctx, first)
	m.primary.set(best)
	m.metrics.recordPrimaryChange(ctx, reasonInitial)
	m.logger.LogAttrs(ctx, slog.LevelInfo, "primary region selected",
		slog.String("primary", best),
		slog.Int("regions", m.registry.Len()),
	)

	bg, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.wg.Add(1)
	go m.reprobeLoop(bg)
}

// Primary returns the name of the currently preferred region.
func (m *Manager) Primary() string { return m.primary.current() }

// Regions returns the configured regions in registry order.
func (m *Manager) Regions() []Region { return m.registry.Regions() }

// Pool returns the pool of the named region.
func (m *Manager) Pool(name string) (*Pool, error) { return m.pools.get(name) }

// WithConn acquires a connection through the router, calls fn, and always
// returns the connection.
func (m *Manager) WithConn(ctx context.Context, fn func(*Conn) error) error {
	conn, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}

// Stats returns a snapshot of every regional pool in registry order.
func (m *Manager) Stats() []PoolStats {
	out := make([]PoolStats, 0, m.registry.Len())
	for _, name := range m.registry.Names() {
		p, err := m.pools.get(name)
		if err != nil {
			continue
		}
		out = append(out, p.Stats())
	}
	return out
}

// Close stops the re-prober and closes every pool. In-flight connections
// are not interrupted. Calls after the first return nil.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		if m.cancel != nil {
			m.cancel()
		}
		m.wg.Wait()
		err = m.pools.closeAll()
		m.logger.LogAttrs(context.Background(), slog.LevelInfo, "manager closed")
	})
	return err
}
