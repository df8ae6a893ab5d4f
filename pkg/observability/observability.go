// Package observability provides OpenTelemetry tracing and RED metrics for
// chain verification. The provider is wired in by cmd and disabled by
// default so library consumers and tests pay nothing for it.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string // gRPC, e.g. "localhost:4317"
	Enabled        bool
	Insecure       bool
}

// DefaultConfig returns a disabled provider configuration.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "attestchain",
		ServiceVersion: "0.1.0",
		OTLPEndpoint:   "localhost:4317",
	}
}

// Provider manages the trace and metric pipelines.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	logger         *slog.Logger

	verifyCounter metric.Int64Counter
	verifyErrors  metric.Int64Counter
	verifyLatency metric.Float64Histogram
}

// New creates the provider and, when enabled, installs it globally so the
// chain package's tracer picks it up.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}
	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}
	if !config.Enabled {
		p.logger.Debug("telemetry disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(config.OTLPEndpoint)}
	if config.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	traceExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(p.tracerProvider)
	otel.SetMeterProvider(p.meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	meter := p.meterProvider.Meter("github.com/cyntra-labs/attestchain")
	if p.verifyCounter, err = meter.Int64Counter("attestchain.verifications",
		metric.WithDescription("Chain verification calls")); err != nil {
		return nil, err
	}
	if p.verifyErrors, err = meter.Int64Counter("attestchain.verification_failures",
		metric.WithDescription("Chain verifications that did not come back all-valid")); err != nil {
		return nil, err
	}
	if p.verifyLatency, err = meter.Float64Histogram("attestchain.verification_duration_seconds",
		metric.WithDescription("End-to-end chain verification latency")); err != nil {
		return nil, err
	}

	return p, nil
}

// RecordVerification records one chain verification outcome.
func (p *Provider) RecordVerification(ctx context.Context, allValid bool, elapsed time.Duration) {
	if p.verifyCounter == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("all_valid", allValid))
	p.verifyCounter.Add(ctx, 1, attrs)
	if !allValid {
		p.verifyErrors.Add(ctx, 1, attrs)
	}
	p.verifyLatency.Record(ctx, elapsed.Seconds(), attrs)
}

// Shutdown flushes and stops the pipelines.
func (p *Provider) Shutdown(ctx context.Context) error {
	var firstErr error
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
