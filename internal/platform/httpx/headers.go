// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package httpx

// Canonical header names.
const (
	HeaderRequestID    = "X-Request-ID"
	HeaderCacheControl = "Cache-Control"
	HeaderContentType  = "Content-Type"
)

// Content types written by the API.
const (
	ContentTypeJSON        = "application/json"
	ContentTypeJSONUTF8    = "application/json; charset=utf-8"
	ContentTypeProblem     = "application/problem+json"
	ContentTypeHTML        = "text/html; charset=utf-8"
	ContentTypeText        = "text/plain; charset=utf-8"
	ContentTypeHLSPlaylist = "application/vnd.apple.mpegurl"
	ContentTypeHLSSegment  = "video/mp2t"
)

// Cache policies: playlists change while packaging runs, segments never do.
const (
	CacheNoStore       = "no-store"
	CacheSegmentOneDay = "public, max-age=86400"
)
