package ygggo_geopool

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"gopkg.in/yaml.v3"
)

// Environment variables read by NewFromEnv.
const (
	EnvConfigFile      = "YGGGO_GEOPOOL_CONFIG"
	EnvDriver          = "YGGGO_GEOPOOL_DRIVER"
	EnvRegions         = "YGGGO_GEOPOOL_REGIONS"
	EnvReprobeInterval = "YGGGO_GEOPOOL_REPROBE_INTERVAL"
	EnvMaxAttempts     = "YGGGO_GEOPOOL_MAX_ATTEMPTS"
	EnvUser            = "CRDB_USER"
	EnvPassword        = "CRDB_PASSWORD"
)

const defaultUser = "appuser"

// PoolConfig holds the settings applied to every regional pool.
type PoolConfig struct {
	// MaxOpen is the per-region connection cap. Zero derives it from
	// Config.ConcurrencyBudget divided across regions.
	MaxOpen int `yaml:"max_open"`
	// MinIdle connections are opened eagerly when WarmUp is set. It is not an
	// idle floor: database/sql does not refill idle connections after start.
	MinIdle        int           `yaml:"min_idle"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	// MaxLifetime is the base lifetime; each pool gets it with ±10% jitter.
	MaxLifetime    time.Duration `yaml:"max_lifetime"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	KeepAlive      time.Duration `yaml:"keepalive"`
	WarmUp         bool          `yaml:"warm_up"`
}

// RetryPolicy controls WithRetry. Backoff is fixed between attempts.
type RetryPolicy struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
	// StatementTimeout is applied to the session before every attempt. Zero disables it.
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
}

// TelemetryConfig holds telemetry configuration
type TelemetryConfig struct {
	// Enabled wraps every driver with otelsql and turns on WithRetry spans.
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// Config holds the manager configuration.
type Config struct {
	// Driver selects the dialect: "pgx" (CockroachDB, default), "mysql",
	// "sqlite", or any registered database/sql driver name.
	Driver   string   `yaml:"driver"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	Regions  []Region `yaml:"regions"`

	Pool              PoolConfig  `yaml:"pool"`
	ConcurrencyBudget int         `yaml:"concurrency_budget"`
	Retry             RetryPolicy `yaml:"retry"`

	ProbeTimeout    time.Duration `yaml:"probe_timeout"`
	ReprobeInterval time.Duration `yaml:"reprobe_interval"`

	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// DefaultPoolConfig returns the per-region pool defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpen:        16,
		MinIdle:        4,
		IdleTimeout:    10 * time.Minute,
		MaxLifetime:    20 * time.Minute,
		AcquireTimeout: 30 * time.Second,
		KeepAlive:      5 * time.Minute,
		WarmUp:         true,
	}
}

// DefaultRetryPolicy returns the WithRetry defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      45,
		Backoff:          time.Second,
		StatementTimeout: 10 * time.Second,
	}
}

// DefaultConfig returns a configuration without regions.
func DefaultConfig() Config {
	return Config{
		Driver:          "pgx",
		Pool:            DefaultPoolConfig(),
		Retry:           DefaultRetryPolicy(),
		ProbeTimeout:    5 * time.Second,
		ReprobeInterval: 2 * time.Minute,
		Logging:         LoggingConfig{Enabled: true, Level: "info"},
	}
}

// LoadConfigFile reads a YAML file on top of DefaultConfig.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parse %s: %v", ErrConfig, path, err)
	}
	return cfg, nil
}

// applyEnv overrides cfg from the process environment.
func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv(EnvDriver)); v != "" {
		cfg.Driver = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRegions)); v != "" {
		regions, err := parseRegions(v)
		if err != nil {
			return err
		}
		cfg.Regions = regions
	}
	if v := strings.TrimSpace(os.Getenv(EnvReprobeInterval)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrConfig, EnvReprobeInterval, err)
		}
		cfg.ReprobeInterval = d
	}
	if v := strings.TrimSpace(os.Getenv(EnvMaxAttempts)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrConfig, EnvMaxAttempts, err)
		}
		cfg.Retry.MaxAttempts = n
	}
	if v, ok := os.LookupEnv(EnvUser); ok && v != "" {
		cfg.Username = v
	}
	if v, ok := os.LookupEnv(EnvPassword); ok {
		cfg.Password = v
	}
	return nil
}

// parseRegions parses "name=target;name=target". Targets may contain '='.
func parseRegions(s string) ([]Region, error) {
	var regions []Region
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, target, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("%w: region %q: want name=target", ErrConfig, part)
		}
		regions = append(regions, Region{Name: strings.TrimSpace(name), Target: strings.TrimSpace(target)})
	}
	return regions, nil
}

// withDefaults fills zero values that have no meaning of their own.
// Retry.Backoff and Retry.StatementTimeout are left alone: zero is valid for both.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Driver == "" {
		c.Driver = def.Driver
	}
	if c.Username == "" {
		c.Username = os.Getenv(EnvUser)
		if c.Username == "" {
			c.Username = defaultUser
		}
	}
	if c.Password == "" {
		c.Password = os.Getenv(EnvPassword)
	}
	if c.Pool.MaxOpen == 0 {
		budget := c.ConcurrencyBudget
		if budget <= 0 {
			budget = defaultConcurrencyBudget()
		}
		c.Pool.MaxOpen = poolShare(budget, len(c.Regions))
		if c.Pool.MinIdle == 0 {
			c.Pool.MinIdle = max(1, c.Pool.MaxOpen/4)
		}
	}
	if c.Pool.IdleTimeout == 0 {
		c.Pool.IdleTimeout = def.Pool.IdleTimeout
	}
	if c.Pool.MaxLifetime == 0 {
		c.Pool.MaxLifetime = def.Pool.MaxLifetime
	}
	if c.Pool.AcquireTimeout == 0 {
		c.Pool.AcquireTimeout = def.Pool.AcquireTimeout
	}
	if c.Pool.KeepAlive == 0 {
		c.Pool.KeepAlive = def.Pool.KeepAlive
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = def.ProbeTimeout
	}
	if c.ReprobeInterval == 0 {
		c.ReprobeInterval = def.ReprobeInterval
	}
	return c
}

// Validate checks everything except the region list, which the registry owns.
func (c Config) Validate() error {
	if c.Pool.MaxOpen <= 0 {
		return fmt.Errorf("%w: pool max_open must be positive, got %d", ErrConfig, c.Pool.MaxOpen)
	}
	if c.Pool.MinIdle < 0 || c.Pool.MinIdle > c.Pool.MaxOpen {
		return fmt.Errorf("%w: pool min_idle must be within [0, %d], got %d", ErrConfig, c.Pool.MaxOpen, c.Pool.MinIdle)
	}
	if c.Pool.IdleTimeout < 0 || c.Pool.MaxLifetime < 0 || c.Pool.AcquireTimeout < 0 || c.Pool.KeepAlive < 0 {
		return fmt.Errorf("%w: pool durations must not be negative", ErrConfig)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("%w: retry max_attempts must be positive, got %d", ErrConfig, c.Retry.MaxAttempts)
	}
	if c.Retry.Backoff < 0 || c.Retry.StatementTimeout < 0 {
		return fmt.Errorf("%w: retry durations must not be negative", ErrConfig)
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("%w: probe_timeout must be positive, got %v", ErrConfig, c.ProbeTimeout)
	}
	if c.ReprobeInterval <= 0 {
		return fmt.Errorf("%w: reprobe_interval must be positive, got %v", ErrConfig, c.ReprobeInterval)
	}
	return nil
}

// defaultConcurrencyBudget is four connections per logical CPU across all regions.
func defaultConcurrencyBudget() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		n = runtime.NumCPU()
	}
	return n * 4
}

func poolShare(budget, regions int) int {
	if regions <= 0 {
		return max(1, budget)
	}
	return max(1, budget/regions)
}
