package ygggo_geopool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

const (
	outcomeSuccess   = "success"
	outcomeRetry     = "retry"
	outcomePermanent = "permanent"
)

// WithRetry runs work on a routed connection, retrying transient failures
// with the manager's RetryPolicy. Every attempt acquires its own connection,
// applies the session statement timeout and releases the connection before
// returning. Non-transient errors and router exhaustion are returned
// immediately; a spent budget returns an error wrapping ErrRetriesExhausted
// and the last failure.
func WithRetry[T any](ctx context.Context, m *Manager, work func(context.Context, *Conn) (T, error)) (T, error) {
	var zero T
	if m.closed.Load() {
		return zero, ErrClosed
	}

	pol := m.cfg.Retry
	opID := uuid.NewString()
	ctx, span := m.startSpan(ctx, "with_retry", opID)

	attempts := 0
	permanent := false
	op := func() (T, error) {
		attempts++
		v, err := runAttempt(ctx, m, pol, work)
		m.spanAttempt(span, attempts, err)
		if err == nil {
			m.metrics.recordAttempt(ctx, outcomeSuccess)
			return v, nil
		}
		// Exhaustion already tried every region; retrying it would only repeat the sweep.
		if errors.Is(err, ErrAllPoolsUnavailable) || !IsTransient(err) {
			permanent = true
			m.metrics.recordAttempt(ctx, outcomePermanent)
			return zero, backoff.Permanent(err)
		}
		m.metrics.recordAttempt(ctx, outcomeRetry)
		return zero, err
	}
	notify := func(err error, wait time.Duration) {
		m.logger.LogAttrs(ctx, slog.LevelDebug, "retrying operation",
			slog.String("op_id", opID),
			slog.Int("attempt", attempts),
			slog.Float64("backoff_ms", durationMS(wait)),
			slog.String("class", Classify(err).String()),
			slog.String("error", err.Error()),
		)
	}

	v, err := backoff.RetryNotifyWithData(op, newRetryBackOff(ctx, pol), notify)
	if err != nil && !permanent && ctx.Err() == nil {
		err = fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, err)
		m.logger.LogAttrs(ctx, slog.LevelError, "retries exhausted",
			slog.String("op_id", opID),
			slog.Int("attempt", attempts),
			slog.String("error", err.Error()),
		)
	}
	m.finishSpan(span, attempts, err)
	if err != nil {
		return zero, err
	}
	return v, nil
}

// Do is WithRetry for work that produces no value.
func (m *Manager) Do(ctx context.Context, work func(context.Context, *Conn) error) error {
	_, err := WithRetry(ctx, m, func(ctx context.Context, c *Conn) (struct{}, error) {
		return struct{}{}, work(ctx, c)
	})
	return err
}

// newRetryBackOff waits Backoff between attempts and allows MaxAttempts in total.
func newRetryBackOff(ctx context.Context, pol RetryPolicy) backoff.BackOffContext {
	retries := pol.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(pol.Backoff), uint64(retries))
	return backoff.WithContext(b, ctx)
}

func runAttempt[T any](ctx context.Context, m *Manager, pol RetryPolicy, work func(context.Context, *Conn) (T, error)) (T, error) {
	var zero T
	conn, err := m.Acquire(ctx)
	if err != nil {
		return zero, err
	}
	defer conn.Close()

	if err := conn.setStatementTimeout(ctx, pol.StatementTimeout); err != nil {
		return zero, fmt.Errorf("set statement timeout on %s: %w", conn.Region(), err)
	}
	return work(ctx, conn)
}
