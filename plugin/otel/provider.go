package otel

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// ProviderConfig selects the exporter and sampling of a tracer provider
type ProviderConfig struct {
	Exporter       string
	Endpoint       string
	Sample         string
	Insecure       bool
	ServiceName    string
	ServiceVersion string
}

// NewProvider creates a tracer provider that batches spans to the
// configured exporter. Callers own the provider and must shut it down.
func NewProvider(c context.Context, pc ProviderConfig) (*sdktrace.TracerProvider, error) {
	ratio, err := sampleRatio(pc.Sample)
	if err != nil {
		return nil, err
	}

	var exp sdktrace.SpanExporter

	switch strings.ToLower(strings.TrimSpace(pc.Exporter)) {
	case "otlp", "otlphttp":
		var opts []otlptracehttp.Option
		if pc.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(pc.Endpoint))
		}
		if pc.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if exp, err = otlptracehttp.New(c, opts...); err != nil {
			return nil, fmt.Errorf("trace exporter: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported tracing exporter '%s'", pc.Exporter)
	}

	name := pc.ServiceName
	if name == "" {
		name = "tenantdb"
	}

	res, err := resource.New(c,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(name),
			semconv.ServiceVersionKey.String(pc.ServiceVersion),
		),
		resource.WithFromEnv(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	return tp, nil
}

// SetGlobal installs tp and the W3C propagators as the process defaults
func SetGlobal(tp *sdktrace.TracerProvider) {
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// sampleRatio parses a ratio between 0 and 1. Empty samples everything.
func sampleRatio(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 1, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || v > 1 {
		return 0, fmt.Errorf("tracing sample must be between 0 and 1: '%s'", s)
	}
	return v, nil
}
