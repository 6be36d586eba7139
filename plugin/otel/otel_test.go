package otel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/patel-ankitb/nestproject-sub000/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecorder() (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, tp
}

func TestTracerSpans(t *testing.T) {
	sr, tp := newRecorder()
	tr := NewWithProvider(tp)

	c, s := tr.Start(context.Background(), "Execute Fetch")
	require.NotNil(t, c)
	assert.True(t, s.IsRecording())

	s.SetAttributesString(
		core.StringAttr{Name: "module", Value: "leads"},
		core.StringAttr{Name: "tenant", Value: "t1"},
	)
	s.Error(errors.New("boom"))
	s.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)

	got := spans[0]
	assert.Equal(t, "Execute Fetch", got.Name())
	assert.Equal(t, codes.Error, got.Status().Code)
	assert.Equal(t, "boom", got.Status().Description)
	assert.Contains(t, got.Attributes(), attribute.String("module", "leads"))
	assert.Contains(t, got.Attributes(), attribute.String("tenant", "t1"))
	require.Len(t, got.Events(), 1)
	assert.Equal(t, "exception", got.Events()[0].Name)
}

func TestTracerNilError(t *testing.T) {
	sr, tp := newRecorder()

	_, s := NewWithProvider(tp).Start(context.Background(), "Resolve Tenant")
	s.Error(nil)
	s.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Empty(t, spans[0].Events())
}

func TestChildSpans(t *testing.T) {
	sr, tp := newRecorder()
	tr := NewWithProvider(tp)

	c, parent := tr.Start(context.Background(), "Do Request")
	_, child := tr.Start(c, "Evaluate Role")
	child.End()
	parent.End()

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
}

func TestHTTPMiddleware(t *testing.T) {
	sr, tp := newRecorder()
	tr := NewWithProvider(tp)

	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, s := tr.Start(r.Context(), "Do Request")
		s.End()
		w.WriteHeader(http.StatusNoContent)
	})
	h = HTTPMiddleware("data", tp)(h)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/data", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "Do Request", spans[0].Name())
	assert.Equal(t, "data", spans[1].Name())
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
	assert.Equal(t, spans[1].SpanContext().TraceID(), spans[0].SpanContext().TraceID())
}

func TestNewProvider(t *testing.T) {
	tp, err := NewProvider(context.Background(), ProviderConfig{
		Exporter: "otlp",
		Endpoint: "127.0.0.1:4318",
		Insecure: true,
		Sample:   "0.5",
	})
	require.NoError(t, err)

	_, s := NewWithProvider(tp).Start(context.Background(), "Do Request")
	s.End()

	// nothing listens on the endpoint, so the final flush may fail
	c, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = tp.Shutdown(c)

	_, s = NewWithProvider(tp).Start(context.Background(), "after")
	assert.False(t, s.IsRecording())
}

func TestNewProviderErrors(t *testing.T) {
	_, err := NewProvider(context.Background(), ProviderConfig{Exporter: "zipkin"})
	assert.ErrorContains(t, err, "unsupported tracing exporter")

	_, err = NewProvider(context.Background(), ProviderConfig{Exporter: "otlp", Sample: "2"})
	assert.ErrorContains(t, err, "between 0 and 1")
}

func TestSampleRatio(t *testing.T) {
	v, err := sampleRatio("")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	v, err = sampleRatio(" 0.25 ")
	require.NoError(t, err)
	assert.Equal(t, 0.25, v)

	_, err = sampleRatio("often")
	assert.Error(t, err)
}
