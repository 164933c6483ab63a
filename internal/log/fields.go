// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldService   = "service"
	FieldVersion   = "version"
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"
	FieldTraceID   = "trace_id"
	FieldSpanID    = "span_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPID       = "pid"

	// Media fields
	FieldSeasonID  = "season_id"
	FieldEpisodeID = "ep_id"
	FieldSort      = "sort"
	FieldAID       = "aid"
	FieldCID       = "cid"
	FieldQuality   = "quality"
	FieldCodec     = "codec"
	FieldMode      = "mode"

	// Path / URL fields
	FieldPath         = "path"
	FieldURL          = "url"
	FieldEndpoint     = "endpoint"
	FieldPlaylistPath = "playlist_path"
)
