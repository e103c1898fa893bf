package tracing

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	UseProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	t.Cleanup(func() { UseProvider(nil) })
	return sr
}

func TestStartSpanAndEnd(t *testing.T) {
	sr := recordSpans(t)

	_, ok := StartSpan(context.Background(), "ok", attribute.Int("round", 2))
	End(ok, nil)
	_, failed := StartSpan(context.Background(), "failed")
	End(failed, errors.New("boom"))

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "ok", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.Int("round", 2))

	assert.Equal(t, "failed", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "boom", spans[1].Status().Description)
}

func TestChildSpansShareTrace(t *testing.T) {
	sr := recordSpans(t)

	ctx, parent := StartSpan(context.Background(), "parent")
	_, child := StartSpan(ctx, "child")
	child.End()
	parent.End()

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, spans[1].SpanContext().TraceID(), spans[0].SpanContext().TraceID())
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
}

func TestTraceparent(t *testing.T) {
	assert.Empty(t, W3CTraceparent(context.Background()))

	recordSpans(t)
	ctx, span := StartSpan(context.Background(), "request")
	defer span.End()

	tp := W3CTraceparent(ctx)
	assert.Regexp(t, regexp.MustCompile(`^00-[0-9a-f]{32}-[0-9a-f]{16}-01$`), tp)

	req, err := http.NewRequest(http.MethodGet, "http://example.test", nil)
	require.NoError(t, err)
	InjectTraceparent(ctx, req)
	assert.Equal(t, tp, req.Header.Get("traceparent"))
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("OTLP_ENDPOINT", "collector:4317")
	t.Setenv("TRACING_SERVICE_NAME", "")

	cfg := ConfigFromEnv()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "collector:4317", cfg.OTLPEndpoint)

	t.Setenv("TRACING_ENABLED", "off")
	assert.False(t, ConfigFromEnv().Enabled)
}

func TestInitializeDisabled(t *testing.T) {
	shutdown, err := Initialize(Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	_, span := StartSpan(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}
