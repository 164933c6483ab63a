// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

// OTelHTTP wraps the handler with OpenTelemetry HTTP instrumentation. It
// extracts W3C trace context and starts a server span per request.
func OTelHTTP(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(
			next,
			serviceName,
			otelhttp.WithTracerProvider(otel.GetTracerProvider()),
			otelhttp.WithPropagators(otel.GetTextMapPropagator()),
			otelhttp.WithFilter(shouldTrace),
			otelhttp.WithSpanNameFormatter(spanNameFormatter),
		)
	}
}

// shouldTrace skips health and metrics endpoints.
func shouldTrace(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return false
	}
	return true
}

// spanNameFormatter names spans "METHOD /path". Segment paths would explode
// span name cardinality, so HLS requests collapse to their kind.
func spanNameFormatter(_ string, r *http.Request) string {
	return r.Method + " " + routeKind(r.URL.Path)
}

func routeKind(path string) string {
	switch {
	case strings.HasPrefix(path, "/hls/"):
		if strings.HasSuffix(path, "/index.m3u8") {
			return "/hls/{seasonID}/{sort}/index.m3u8"
		}
		return "/hls/{seasonID}/{sort}/{segment}"
	case strings.HasPrefix(path, "/detail/"):
		return "/detail/{id}"
	case strings.HasPrefix(path, "/html/"):
		return "/html/{id}"
	default:
		return path
	}
}
