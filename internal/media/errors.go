// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package media

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrInvalidReference  = errors.New("invalid media reference")
	ErrUpstreamProtocol  = errors.New("upstream rejected the request")
	ErrUpstreamSchema    = errors.New("upstream response is missing a required field")
	ErrNotFound          = errors.New("not found")
	ErrExhaustedFallback = errors.New("all candidate urls failed")
	ErrPipelineLaunch    = errors.New("pipeline launch failed")
	ErrTimeout           = errors.New("timed out waiting for output")
)

// Error wraps one of the sentinel kinds with operation context.
// errors.Is matches both the kind and the wrapped cause.
type Error struct {
	Kind   error
	Op     string
	Code   int // upstream business code or HTTP status, 0 if none
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (code %d)", msg, e.Code)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Errorf builds an *Error of the given kind with a formatted detail.
func Errorf(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// UpstreamCode returns the upstream code carried by err, if any.
func UpstreamCode(err error) (int, bool) {
	var me *Error
	if errors.As(err, &me) && me.Code != 0 {
		return me.Code, true
	}
	return 0, false
}

// IsRiskControl reports whether err is the platform's -412 rejection, which
// it sends when request signing or pacing looks automated.
func IsRiskControl(err error) bool {
	if !errors.Is(err, ErrUpstreamProtocol) {
		return false
	}
	code, ok := UpstreamCode(err)
	return ok && (code == -412 || code == 412)
}
