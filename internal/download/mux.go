// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/bilihls/internal/ffmpeg"
	"github.com/ManuGH/bilihls/internal/log"
	"github.com/ManuGH/bilihls/internal/media"
	platformnet "github.com/ManuGH/bilihls/internal/platform/net"
)

const partSuffix = ".part"

// Executor runs one ffmpeg invocation to completion.
type Executor interface {
	Run(ctx context.Context, args []string) error
}

// Muxer combines one video and one audio input into a single container
// without re-encoding.
type Muxer struct {
	exec    Executor
	headers ffmpeg.Headers
	logger  zerolog.Logger
}

// NewMuxer returns a Muxer. headers apply to remote inputs only.
func NewMuxer(exec Executor, headers ffmpeg.Headers, logger zerolog.Logger) *Muxer {
	return &Muxer{exec: exec, headers: headers, logger: logger}
}

// MuxFiles muxes two local files into out.
func (m *Muxer) MuxFiles(ctx context.Context, video, audio, out string) error {
	inputs := []string{"-i", video, "-i", audio}
	return m.mux(ctx, inputs, out)
}

// MuxURLs muxes remote inputs straight into out. The candidate lists are
// prioritized and paired by position; the next pair is tried when ffmpeg
// fails. It reports ErrExhaustedFallback when every pair failed.
func (m *Muxer) MuxURLs(ctx context.Context, videoURLs, audioURLs []string, out string) error {
	videos := platformnet.DirectURLs(media.Prioritize(videoURLs))
	audios := platformnet.DirectURLs(media.Prioritize(audioURLs))
	if len(videos) == 0 || len(audios) == 0 {
		return media.Errorf(media.ErrNotFound, "download.mux", "no usable url for video or audio")
	}

	pairs := max(len(videos), len(audios))
	logger := log.WithContext(ctx, m.logger)
	var errs []error
	for i := range pairs {
		v := videos[min(i, len(videos)-1)]
		a := audios[min(i, len(audios)-1)]
		err := m.mux(ctx, m.remoteInputs(v, a), out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn().Err(err).
			Str(log.FieldEvent, "mux.fallback").
			Str("video", platformnet.SanitizeURL(v)).
			Str("audio", platformnet.SanitizeURL(a)).
			Int("attempt", i+1).
			Msg("mux attempt failed")
		errs = append(errs, err)
	}
	return &media.Error{Kind: media.ErrExhaustedFallback, Op: "download.mux", Err: errors.Join(errs...)}
}

func (m *Muxer) remoteInputs(video, audio string) []string {
	headers := m.headers.String()
	var in []string
	for _, u := range []string{video, audio} {
		if m.headers.UserAgent != "" {
			in = append(in, "-user_agent", m.headers.UserAgent)
		}
		in = append(in, "-headers", headers, "-i", u)
	}
	return in
}

// mux writes to a sibling part file and renames it over out on success.
func (m *Muxer) mux(ctx context.Context, inputs []string, out string) error {
	if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	part := out + partSuffix
	args := MuxArgs(inputs, part, containerFormat(out))

	logger := log.WithContext(ctx, m.logger)
	logger.Debug().
		Str(log.FieldEvent, "mux.start").
		Str("output", out).
		Msg("muxing")
	if err := m.exec.Run(ctx, args); err != nil {
		_ = os.Remove(part)
		return fmt.Errorf("ffmpeg mux: %w", err)
	}
	if err := os.Rename(part, out); err != nil {
		_ = os.Remove(part)
		return fmt.Errorf("finalize %s: %w", out, err)
	}
	return nil
}

// MuxArgs builds the stream-copy argument vector for inputs writing to
// output in the given container format.
func MuxArgs(inputs []string, output, format string) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-progress", "pipe:1",
		"-nostats",
	}
	args = append(args, inputs...)
	args = append(args,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c", "copy",
	)
	if format == "mp4" || format == "mov" {
		args = append(args, "-movflags", "+faststart")
	}
	return append(args, "-f", format, "-y", output)
}

func containerFormat(path string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "mkv":
		return "matroska"
	case "mov":
		return "mov"
	case "ts":
		return "mpegts"
	default:
		return "mp4"
	}
}
