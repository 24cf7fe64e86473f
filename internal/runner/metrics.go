package runner

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/inkforge/inkforge/internal/runner"

type instruments struct {
	tracer      trace.Tracer
	invocations metric.Int64Counter
	fallbacks   metric.Int64Counter
	degraded    metric.Int64Counter
	latency     metric.Float64Histogram
}

// Option customises a Runner.
type Option func(*options)

type options struct {
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

// WithMeterProvider records runner metrics on mp instead of the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// WithTracerProvider records runner spans on tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

func newInstruments(opts ...Option) instruments {
	o := options{
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	meter := o.meterProvider.Meter(instrumentationName)
	fallback := noop.NewMeterProvider().Meter(instrumentationName)

	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			slog.Warn("metric unavailable", "name", name, "err", err)
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}
	latency, err := meter.Float64Histogram("inkforge.invocation.duration",
		metric.WithDescription("Tool invocation latency"), metric.WithUnit("s"))
	if err != nil {
		latency, _ = fallback.Float64Histogram("inkforge.invocation.duration")
	}

	return instruments{
		tracer:      o.tracerProvider.Tracer(instrumentationName),
		invocations: counter("inkforge.invocations", "Tool invocations by outcome"),
		fallbacks:   counter("inkforge.local_fallbacks", "Whole-system fallbacks to the local provider"),
		degraded:    counter("inkforge.degraded_outputs", "JSON outputs replaced by a placeholder"),
		latency:     latency,
	}
}

func (in instruments) countInvocation(ctx context.Context, tool, provider, outcome string) {
	in.invocations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	))
}
