// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import "strings"

// Headers are the HTTP request headers sent for remote inputs.
type Headers struct {
	Referer   string
	Origin    string
	UserAgent string
	Cookie    string
}

// String renders the CRLF separated block the -headers option expects,
// terminated by an empty line. Empty values are omitted.
func (h Headers) String() string {
	var b strings.Builder
	add := func(name, value string) {
		if value == "" {
			return
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\r\n")
	}
	add("Referer", h.Referer)
	add("Origin", h.Origin)
	add("User-Agent", h.UserAgent)
	add("Cookie", h.Cookie)
	b.WriteString("\r\n")
	return b.String()
}
