// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"path/filepath"
	"strconv"

	"github.com/ManuGH/bilihls/internal/ffmpeg"
)

const (
	// PlaylistName is the presentation manifest inside a key directory.
	PlaylistName   = "index.m3u8"
	segmentPattern = "%010d.ts"

	defaultSegmentSeconds = 2
	defaultLogLevel       = "warning"
)

// Headers are the request headers ffmpeg sends for both inputs.
type Headers = ffmpeg.Headers

// Invocation describes one packaging run.
type Invocation struct {
	VideoURL  string
	AudioURL  string
	CopyVideo bool
	Headers   Headers
	OutputDir string
	// SegmentSeconds defaults to 2.
	SegmentSeconds int
	LogLevel       string
}

// Args returns the ffmpeg argument vector: two header-carrying inputs, video
// copied or re-encoded to H.264, audio copied, muxed into an unbounded HLS
// playlist with mpegts segments.
func (in Invocation) Args() []string {
	seg := in.SegmentSeconds
	if seg <= 0 {
		seg = defaultSegmentSeconds
	}
	level := in.LogLevel
	if level == "" {
		level = defaultLogLevel
	}
	headers := in.Headers.String()

	args := []string{
		"-hide_banner",
		"-loglevel", level,
		"-headers", headers, "-i", in.VideoURL,
		"-headers", headers, "-i", in.AudioURL,
	}
	if in.CopyVideo {
		args = append(args, "-c:v", "copy")
	} else {
		gop := strconv.Itoa(seg * 30)
		args = append(args,
			"-c:v", "libx264",
			"-preset", "veryfast",
			"-crf", "23",
			"-profile:v", "high",
			"-level", "4.1",
			"-sc_threshold", "0",
			"-g", gop,
			"-keyint_min", gop,
			"-force_key_frames", "expr:gte(t,n_forced*"+strconv.Itoa(seg)+")",
		)
	}
	args = append(args,
		"-c:a", "copy",
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-f", "hls",
		"-hls_time", strconv.Itoa(seg),
		"-hls_list_size", "0",
		"-hls_segment_type", "mpegts",
		"-hls_flags", "independent_segments",
		"-hls_segment_filename", filepath.Join(in.OutputDir, segmentPattern),
		"-start_number", "0",
		"-y",
		filepath.Join(in.OutputDir, PlaylistName),
	)
	return args
}
