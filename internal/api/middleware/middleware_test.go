// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/bilihls/internal/log"
	"github.com/ManuGH/bilihls/internal/metrics"
)

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestCORSAllowAll(t *testing.T) {
	h := CORS(nil)(http.HandlerFunc(ok))

	req := httptest.NewRequest(http.MethodGet, "/hls/1/1/index.m3u8", nil)
	req.Header.Set("Origin", "https://player.example")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "86400", rr.Header().Get("Access-Control-Max-Age"))
	assert.Contains(t, rr.Header().Get("Access-Control-Expose-Headers"), "Accept-Ranges")
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), "Range")
}

func TestCORSAllowList(t *testing.T) {
	h := CORS([]string{"https://ok.example"})(http.HandlerFunc(ok))

	for origin, want := range map[string]string{
		"https://ok.example":  "https://ok.example",
		"https://bad.example": "",
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", origin)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, want, rr.Header().Get("Access-Control-Allow-Origin"), origin)
	}
}

func TestCORSPreflight(t *testing.T) {
	called := false
	h := CORS(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/search", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, corsMethods, rr.Header().Get("Allow"))
	assert.False(t, called)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = log.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", rr.Header().Get(HeaderRequestID))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 36, "generated ids are uuids")
	assert.Equal(t, seen, rr.Header().Get(HeaderRequestID))
}

func TestRecoverer(t *testing.T) {
	h := Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rr := httptest.NewRecorder()
	require.NotPanics(t, func() { h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil)) })
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"internal_error"}`, rr.Body.String())
}

func TestMetricsUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics())
	r.Get("/detail/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })

	before := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues(http.MethodGet, "/detail/{id}", "418"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/detail/42", nil))
	after := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues(http.MethodGet, "/detail/{id}", "418"))
	assert.Equal(t, before+1, after)
}

func TestRateLimit(t *testing.T) {
	h := APIRateLimit(2)(http.HandlerFunc(ok))
	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/search", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestSpanNames(t *testing.T) {
	for path, want := range map[string]string{
		"/hls/1/2/index.m3u8":    "GET /hls/{seasonID}/{sort}/index.m3u8",
		"/hls/1/2/0000000001.ts": "GET /hls/{seasonID}/{sort}/{segment}",
		"/detail/9":              "GET /detail/{id}",
		"/search":                "GET /search",
	} {
		assert.Equal(t, want, spanNameFormatter("", httptest.NewRequest(http.MethodGet, path, nil)))
	}
	assert.False(t, shouldTrace(httptest.NewRequest(http.MethodGet, "/healthz", nil)))
}

func TestStackServes(t *testing.T) {
	r := NewRouter(StackConfig{EnableMetrics: true, EnableLogging: true, EnableSecurityHeaders: true, TracingService: "test"})
	r.Get("/healthz", ok)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get(HeaderRequestID))
}
