package ygggo_geopool

import (
	"context"
	"fmt"

	"github.com/XSAM/otelsql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationVersion = "v0.1.0"

func newTracer(provider trace.TracerProvider) trace.Tracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return provider.Tracer(instrumentationName, trace.WithInstrumentationVersion(instrumentationVersion))
}

// otelsqlOptions returns the driver instrumentation options for a region,
// or nil when telemetry is disabled.
func otelsqlOptions(cfg Config, region Region, tp trace.TracerProvider, mp metric.MeterProvider) []otelsql.Option {
	if !cfg.Telemetry.Enabled {
		return nil
	}
	attrs := []attribute.KeyValue{
		attribute.String("db.system", dialectFor(cfg.Driver).name),
		attribute.String("geopool.region", region.Name),
	}
	if cfg.Telemetry.ServiceName != "" {
		attrs = append(attrs, attribute.String("service.name", cfg.Telemetry.ServiceName))
	}
	opts := []otelsql.Option{otelsql.WithAttributes(attrs...)}
	if tp != nil {
		opts = append(opts, otelsql.WithTracerProvider(tp))
	}
	if mp != nil {
		opts = append(opts, otelsql.WithMeterProvider(mp))
	}
	return opts
}

// startSpan creates the span of one WithRetry call.
func (m *Manager) startSpan(ctx context.Context, operation, opID string) (context.Context, trace.Span) {
	if !m.cfg.Telemetry.Enabled {
		return ctx, trace.SpanFromContext(ctx)
	}
	ctx, span := m.tracer.Start(ctx, fmt.Sprintf("ygggo_geopool.%s", operation))
	span.SetAttributes(
		attribute.String("geopool.op_id", opID),
		attribute.String("geopool.primary", m.Primary()),
	)
	return ctx, span
}

func (m *Manager) spanAttempt(span trace.Span, attempt int, err error) {
	if !m.cfg.Telemetry.Enabled {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.Int("attempt", attempt),
		attribute.String("status", status(err)),
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error", err.Error()))
	}
	span.AddEvent("attempt", trace.WithAttributes(attrs...))
}

// finishSpan completes a span with error handling
func (m *Manager) finishSpan(span trace.Span, attempts int, err error) {
	if !m.cfg.Telemetry.Enabled {
		return
	}
	span.SetAttributes(attribute.Int("geopool.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
