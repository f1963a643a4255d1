// Package tracing exports OpenTelemetry spans over OTLP/gRPC and wraps
// batch and carrier operations in them.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const tracerName = "github.com/wms-platform/shipment-pipeline"

// Config is filled from the environment; Environment is copied from the
// service config
type Config struct {
	ServiceName  string  `yaml:"-"`
	Environment  string  `yaml:"-"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	SampleRate   float64 `yaml:"sampleRate" validate:"gte=0,lte=1"`
	Enabled      bool    `yaml:"enabled"`
}

func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName:  serviceName,
		Environment:  "development",
		OTLPEndpoint: "localhost:4317",
		SampleRate:   1,
	}
}

// sampler honours the caller's decision and samples new traces at SampleRate
func (c *Config) sampler() sdktrace.Sampler {
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRate))
}

func (c *Config) resource(ctx context.Context) (*resource.Resource, error) {
	return resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(c.ServiceName),
		semconv.ServiceNamespace("shipment-pipeline"),
		semconv.DeploymentEnvironment(c.Environment),
	))
}

// TracerProvider owns the SDK provider when tracing is enabled
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// Initialize installs W3C propagation and, when enabled, a batching OTLP
// exporter as the global provider. Disabled tracing keeps the no-op
// provider so spans cost nothing.
func Initialize(ctx context.Context, config *Config) (*TracerProvider, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	if !config.Enabled {
		return &TracerProvider{}, nil
	}

	conn, err := grpc.NewClient(config.OTLPEndpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to dial OTLP collector: %w", err)
	}
	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	res, err := config.resource(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to describe tracing resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(config.sampler()),
	)
	otel.SetTracerProvider(provider)
	return &TracerProvider{provider: provider}, nil
}

// Shutdown flushes buffered spans
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider == nil {
		return nil
	}
	return tp.provider.Shutdown(ctx)
}

// GetTraceID returns the active trace ID, or "" outside a span
func GetTraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// TracedOperation runs fn in a child span and marks the span failed when
// fn returns an error
func TracedOperation[T any](ctx context.Context, name string, fn func(context.Context) (T, error), attrs ...attribute.KeyValue) (T, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
	defer span.End()

	result, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func BatchSpanAttributes(jobID string, totalRows int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("batch.job_id", jobID),
		attribute.Int("batch.total_rows", totalRows),
	}
}

func CarrierSpanAttributes(carrier, operation string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("carrier.name", carrier),
		attribute.String("carrier.operation", operation),
	}
}
