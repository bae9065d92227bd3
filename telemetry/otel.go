// Package telemetry initializes OTLP trace export for the edge.
package telemetry

import (
	"context"
	"net/url"
	"time"

	cerrors "github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"github.com/4Bfast/costs-hub-edge/logger"
)

type ShutdownFunc func()

// New installs a global tracer provider exporting to the given OTLP endpoint.
// Returns a shutdown function that flushes pending spans.
func New(ctx context.Context, endpoint string, serviceName string, log logger.Logger) (ShutdownFunc, error) {
	otlpURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, cerrors.Wrap(err, "error parsing otlp endpoint")
	}

	res, err := resource.New(
		ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil && !cerrors.Is(err, resource.ErrPartialResource) {
		return nil, cerrors.Wrap(err, "error creating resource")
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpointURL(endpoint),
		otlptracehttp.WithTimeout(10 * time.Second),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	}
	if otlpURL.Scheme == "http" {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, cerrors.Wrap(err, "error creating trace exporter")
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.Warn("trace provider shutdown: %v", err)
		}
	}, nil
}
