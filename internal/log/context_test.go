// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestContextWithRequestID(t *testing.T) {
	tests := []struct {
		name      string
		ctx       context.Context
		requestID string
		want      string
	}{
		{name: "nil context", ctx: nil, requestID: "test-id-123", want: "test-id-123"},
		{name: "background context", ctx: context.Background(), requestID: "req-456", want: "req-456"},
		{name: "empty request ID", ctx: context.Background(), requestID: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := ContextWithRequestID(tt.ctx, tt.requestID)
			assert.Equal(t, tt.want, RequestIDFromContext(ctx))
		})
	}
}

func TestJobIDFromContext(t *testing.T) {
	ctx := ContextWithJobID(context.Background(), "123/4")
	assert.Equal(t, "123/4", JobIDFromContext(ctx))
	assert.Empty(t, JobIDFromContext(context.Background()))
	assert.Empty(t, JobIDFromContext(context.WithValue(context.Background(), jobIDKey, 42)))
}

func captureBase(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	Configure(Config{Output: &buf, Level: "debug", Service: "test"})
	t.Cleanup(func() { Configure(Config{}) })
	return &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	return entry
}

func TestWithContextAddsCorrelationFields(t *testing.T) {
	buf := captureBase(t)

	ctx := ContextWithJobID(ContextWithRequestID(context.Background(), "req-1"), "job-1")
	logger := WithContext(ctx, WithComponent("hls"))
	logger.Info().Msg("hello")

	entry := decodeLine(t, buf)
	assert.Equal(t, "req-1", entry[FieldRequestID])
	assert.Equal(t, "job-1", entry[FieldJobID])
	assert.Equal(t, "hls", entry[FieldComponent])
	assert.Equal(t, "test", entry[FieldService])
}

func TestWithTraceContext(t *testing.T) {
	buf := captureBase(t)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	logger := WithTraceContext(ctx)
	logger.Info().Msg("traced")

	entry := decodeLine(t, buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry[FieldTraceID])
	assert.Equal(t, "00f067aa0ba902b7", entry[FieldSpanID])
}

func TestFromContextFallsBackToBase(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
	assert.NotEqual(t, zerolog.Disabled, l.GetLevel())
}

func TestMiddlewareLogsRequest(t *testing.T) {
	buf := captureBase(t)

	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Debug().Msg("inside")
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(http.MethodGet, "/hls/1/1/index.m3u8", nil)
	req = req.WithContext(ContextWithRequestID(req.Context(), "rid"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &entry))
	assert.Equal(t, "request.handled", entry[FieldEvent])
	assert.EqualValues(t, http.StatusTeapot, entry["status"])
	assert.Equal(t, "rid", entry[FieldRequestID])
}
