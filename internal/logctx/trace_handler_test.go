package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func newBufferedLogger(t *testing.T, opts *slog.HandlerOptions) (*slog.Logger, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer

	return slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, opts))), &buf
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "log output: %s", buf.String())

	return entry
}

func spanContext(t *testing.T) context.Context {
	t.Helper()

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})

	return trace.ContextWithSpanContext(context.Background(), sc)
}

func TestTraceHandler_PlainContext(t *testing.T) {
	logger, buf := newBufferedLogger(t, nil)

	logger.InfoContext(context.Background(), "listing formats", "url", "https://example.com/v")

	entry := decodeEntry(t, buf)
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
	assert.NotContains(t, entry, "request_id")
	assert.Equal(t, "listing formats", entry["msg"])
	assert.Equal(t, "https://example.com/v", entry["url"])
}

func TestTraceHandler_WithSpanContext(t *testing.T) {
	logger, buf := newBufferedLogger(t, nil)

	logger.InfoContext(spanContext(t), "download finished")

	entry := decodeEntry(t, buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
}

func TestTraceHandler_WithRequestID(t *testing.T) {
	logger, buf := newBufferedLogger(t, nil)

	ctx := WithRequestID(spanContext(t), "req-42")
	logger.WarnContext(ctx, "file not found")

	entry := decodeEntry(t, buf)
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
}

func TestTraceHandler_Enabled(t *testing.T) {
	h := NewTraceHandler(slog.NewJSONHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}))

	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestTraceHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	base := NewTraceHandler(slog.NewJSONHandler(&buf, nil))

	withAttrs := base.WithAttrs([]slog.Attr{slog.String("component", "extractor")})
	require.IsType(t, &TraceHandler{}, withAttrs)

	withGroup := withAttrs.WithGroup("ytdlp")
	require.IsType(t, &TraceHandler{}, withGroup)

	slog.New(withGroup).InfoContext(WithRequestID(context.Background(), "abc"), "run", "args", 3)

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "extractor", entry["component"])
	require.Contains(t, entry, "ytdlp")
	group, ok := entry["ytdlp"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(3), group["args"])
	assert.Equal(t, "abc", group["request_id"])
}

func TestTraceHandler_NilHandler(t *testing.T) {
	assert.Panics(t, func() { NewTraceHandler(nil) })
}

func TestLoggerFromContext(t *testing.T) {
	assert.Same(t, slog.Default(), LoggerFromContext(context.Background()))

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	assert.Same(t, logger, LoggerFromContext(WithLogger(context.Background(), logger)))
}

func TestRequestIDFromContext(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))
	assert.Equal(t, "id-1", RequestIDFromContext(WithRequestID(context.Background(), "id-1")))
}
