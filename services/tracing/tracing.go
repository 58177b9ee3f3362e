// Package tracing configures the OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"github.com/cornelabs/lms/core"
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Init installs the global tracer provider. Spans are exported over OTLP/HTTP when an endpoint
// is configured and printed to stdout otherwise. When tracing is disabled, the global no-op
// provider is left in place.
func Init(ctx context.Context, conf *core.Config, logger core.Logger) ShutdownFunc {
	if !conf.Otel.Enabled {
		return noopShutdown
	}

	serviceName := conf.Otel.ServiceName
	if serviceName == "" {
		serviceName = "lms-api"
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(conf.Build),
		attribute.String("deployment.environment", conf.Env),
	))
	if err != nil {
		logger.Warn("otel resource init failed (continuing)", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio(conf.Otel.SampleRatio)))),
		sdktrace.WithResource(res),
	}
	exporter, err := newExporter(ctx, conf)
	if err != nil {
		logger.Warn("otel exporter init failed (continuing)", err)
	} else {
		opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	logger.Info("otel tracing initialized", map[string]interface{}{
		"service":  serviceName,
		"endpoint": conf.Otel.Endpoint,
	})
	return tp.Shutdown
}

func newExporter(ctx context.Context, conf *core.Config) (sdktrace.SpanExporter, error) {
	if conf.Otel.Endpoint == "" {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(conf.Otel.Endpoint)}
	if conf.Otel.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return otlptracehttp.New(ctx, opts...)
}

func sampleRatio(r float64) float64 {
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	}
	return r
}
