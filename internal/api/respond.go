// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ManuGH/bilihls/internal/media"
	"github.com/ManuGH/bilihls/internal/platform/httpx"
)

// Business codes of the JSON envelope besides upstream ones.
const (
	codeOK         = 0
	codeBadRequest = 400
	codeNotFound   = 404
	codeNonJSON    = 1001
	codeInternal   = 500
	codeBadGateway = 502
)

const (
	msgRiskControl = "请求被拦截(需要有效 Cookie)"
	msgNonJSON     = "上游返回非 JSON"
)

// Result is the JSON envelope of the catalog endpoints.
type Result[T any] struct {
	Code    int    `json:"code"`
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// problem is the error body of the HLS endpoints.
type problem struct {
	Status int    `json:"status"`
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(httpx.HeaderContentType, httpx.ContentTypeJSONUTF8)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK[T any](w http.ResponseWriter, data T) {
	writeJSON(w, http.StatusOK, Result[T]{Code: codeOK, Success: true, Data: data})
}

func writeFailure[T any](w http.ResponseWriter, status, code int, msg string, empty T) {
	writeJSON(w, status, Result[T]{Code: code, Success: false, Message: msg, Data: empty})
}

func writeProblem(w http.ResponseWriter, status int, code, detail string) {
	w.Header().Set(httpx.HeaderContentType, httpx.ContentTypeProblem)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem{Status: status, Code: code, Detail: detail})
}

// classify maps an error to an HTTP status, an envelope code and a message.
func classify(err error) (status, code int, msg string) {
	var syntaxErr *json.SyntaxError
	switch {
	case media.IsRiskControl(err):
		return http.StatusPreconditionFailed, -412, msgRiskControl
	case errors.Is(err, media.ErrNotFound):
		return http.StatusNotFound, codeNotFound, firstLine(err)
	case errors.Is(err, media.ErrInvalidReference):
		return http.StatusBadRequest, codeBadRequest, firstLine(err)
	case errors.Is(err, media.ErrUpstreamSchema) && errors.As(err, &syntaxErr):
		return http.StatusBadGateway, codeNonJSON, msgNonJSON
	case errors.Is(err, media.ErrUpstreamSchema):
		return http.StatusBadGateway, codeBadGateway, firstLine(err)
	case errors.Is(err, media.ErrUpstreamProtocol):
		if code, ok := media.UpstreamCode(err); ok {
			return http.StatusInternalServerError, code, firstLine(err)
		}
		return http.StatusInternalServerError, codeInternal, firstLine(err)
	default:
		return http.StatusInternalServerError, codeInternal, firstLine(err)
	}
}

// problemCode names the failure class of an HLS error body.
func problemCode(err error) string {
	switch {
	case media.IsRiskControl(err):
		return "upstream_rejected"
	case errors.Is(err, media.ErrNotFound):
		return "not_found"
	case errors.Is(err, media.ErrInvalidReference):
		return "invalid_reference"
	case errors.Is(err, media.ErrUpstreamSchema):
		return "upstream_schema"
	case errors.Is(err, media.ErrUpstreamProtocol):
		return "upstream_error"
	case errors.Is(err, media.ErrPipelineLaunch):
		return "pipeline_launch"
	case errors.Is(err, media.ErrTimeout):
		return "timeout"
	default:
		return "internal"
	}
}

func firstLine(err error) string {
	s := err.Error()
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return "内部错误"
	}
	return s
}
