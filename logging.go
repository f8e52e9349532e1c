package ygggo_geopool

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// newLogger builds the JSON stdout logger described by cfg.
func newLogger(cfg LoggingConfig) *slog.Logger {
	if !cfg.Enabled {
		return discardLogger
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}))
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func durationMS(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}

// logPrimaryChange logs a promotion of the primary region.
func (m *Manager) logPrimaryChange(ctx context.Context, reason, from, to string) {
	level := slog.LevelInfo
	if reason == reasonFailover {
		level = slog.LevelWarn
	}
	m.logger.LogAttrs(ctx, level, "primary region changed",
		slog.String("reason", reason),
		slog.String("from", from),
		slog.String("primary", to),
	)
}

// logPoolUnavailable logs a failed acquisition from one region.
func (m *Manager) logPoolUnavailable(ctx context.Context, region string, err error) {
	m.logger.LogAttrs(ctx, slog.LevelWarn, "pool unavailable",
		slog.String("region", region),
		slog.String("error", err.Error()),
	)
}

// logProbe logs the outcome of one latency probe.
func (pr *prober) logProbe(ctx context.Context, region string, latency time.Duration, err error) {
	if err != nil {
		pr.logger.LogAttrs(ctx, slog.LevelWarn, "latency probe failed",
			slog.String("region", region),
			slog.String("error", err.Error()),
		)
		return
	}
	pr.logger.LogAttrs(ctx, slog.LevelDebug, "latency probe",
		slog.String("region", region),
		slog.Float64("latency_ms", durationMS(latency)),
	)
}
