// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared across spans.
const (
	SeasonIDKey   = "media.season_id"
	EpisodeIDKey  = "media.ep_id"
	SortKey       = "media.sort"
	AIDKey        = "media.aid"
	CIDKey        = "media.cid"
	QualityKey    = "media.quality"
	CodecKey      = "media.codec_id"
	CopyVideoKey  = "pipeline.copy_video"
	PipelineState = "pipeline.state"
	EndpointKey   = "upstream.endpoint"
	UpstreamCode  = "upstream.code"
	ErrorTypeKey  = "error.type"
)

// PipelineAttributes describes a packaging job.
func PipelineAttributes(seasonID int64, sort int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64(SeasonIDKey, seasonID),
		attribute.Int(SortKey, sort),
	}
}

// SelectionAttributes describes the chosen renditions.
func SelectionAttributes(quality, codecID int, copyVideo bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(QualityKey, quality),
		attribute.Int(CodecKey, codecID),
		attribute.Bool(CopyVideoKey, copyVideo),
	}
}

// RecordError marks span as failed with err, tagged with errType.
func RecordError(span trace.Span, err error, errType string) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(attribute.String(ErrorTypeKey, errType))
	span.SetStatus(codes.Error, err.Error())
}
