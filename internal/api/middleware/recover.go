// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/google/uuid"

	"github.com/ManuGH/bilihls/internal/log"
	"github.com/ManuGH/bilihls/internal/platform/httpx"
)

// HeaderRequestID carries the correlation id in both directions.
const HeaderRequestID = httpx.HeaderRequestID

// maxRequestIDLen bounds client supplied ids before they reach the logs.
const maxRequestIDLen = 64

// RequestID reuses a sane client supplied X-Request-ID or generates one,
// stores it in the request context and echoes it in the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(log.ContextWithRequestID(r.Context(), id)))
	})
}

// Recoverer turns handler panics into a 500 response and an error log entry.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.FromContext(r.Context()).Error().
				Str(log.FieldEvent, "http.panic").
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("path", r.URL.Path).
				Msg("handler panicked")
			w.Header().Set(httpx.HeaderContentType, httpx.ContentTypeJSON)
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"internal_error"}`))
		}()
		next.ServeHTTP(w, r)
	})
}
