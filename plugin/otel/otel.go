// Package otel plugs OpenTelemetry tracing into the engine and the HTTP
// service.
package otel

import (
	"context"
	"net/http"

	"github.com/patel-ankitb/nestproject-sub000/core"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "github.com/patel-ankitb/nestproject-sub000"

type Tracer struct {
	tracer trace.Tracer
}

// New returns a tracer backed by the global tracer provider
func New() *Tracer {
	return NewWithProvider(otel.GetTracerProvider())
}

func NewWithProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(instrumentation)}
}

func (t *Tracer) Start(c context.Context, name string) (context.Context, core.Spaner) {
	c, s := t.tracer.Start(c, name)
	return c, &span{s}
}

type span struct {
	trace.Span
}

func (s *span) SetAttributesString(attrs ...core.StringAttr) {
	kv := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		kv = append(kv, attribute.String(a.Name, a.Value))
	}
	s.Span.SetAttributes(kv...)
}

func (s *span) IsRecording() bool {
	return s.Span.IsRecording()
}

func (s *span) Error(err error) {
	if err == nil {
		return
	}
	s.Span.RecordError(err)
	s.Span.SetStatus(codes.Error, err.Error())
}

func (s *span) End() {
	s.Span.End()
}

// HTTPMiddleware wraps a handler so every request opens a server span on
// tp. Engine spans started from the request context become its children.
func HTTPMiddleware(operation string, tp trace.TracerProvider) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return otelhttp.NewHandler(h, operation, otelhttp.WithTracerProvider(tp))
	}
}
