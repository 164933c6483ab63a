// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package download

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/ManuGH/bilihls/internal/log"
	"github.com/ManuGH/bilihls/internal/media"
	"github.com/ManuGH/bilihls/internal/storage"
)

// Mode selects how a target is materialized.
type Mode int

const (
	// ModeFiles downloads both tracks, then muxes the local files.
	ModeFiles Mode = iota
	// ModeStream lets ffmpeg read the remote tracks directly.
	ModeStream
)

// ParseMode maps "files" and "stream" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "files":
		return ModeFiles, nil
	case "stream":
		return ModeStream, nil
	default:
		return 0, fmt.Errorf("unknown download mode %q", s)
	}
}

// ManifestSource fetches the track manifest of a resolved target.
type ManifestSource interface {
	FetchManifest(ctx context.Context, t media.Target) (media.TrackManifest, error)
}

// Options tune a single Downloader.Run call.
type Options struct {
	Mode Mode
	// KeepTracks leaves the downloaded track files next to the output.
	KeepTracks bool
	// Progress, if set, is called with "video" or "audio" as kind.
	Progress func(kind string, written, total int64)
}

// Result describes a finished download.
type Result struct {
	Output    string
	Selection media.Selection
}

// Downloader turns a resolved target into a muxed file on disk.
type Downloader struct {
	src      ManifestSource
	fetcher  *Fetcher
	muxer    *Muxer
	renderer *storage.Renderer
	logger   zerolog.Logger
}

// NewDownloader wires the download pipeline.
func NewDownloader(src ManifestSource, fetcher *Fetcher, muxer *Muxer, renderer *storage.Renderer, logger zerolog.Logger) *Downloader {
	return &Downloader{src: src, fetcher: fetcher, muxer: muxer, renderer: renderer, logger: logger}
}

// Run fetches the manifest of t, selects the best tracks and writes the
// muxed output at the rendered storage path.
func (d *Downloader) Run(ctx context.Context, t media.Target, opts Options) (Result, error) {
	base, err := d.renderer.Base(t)
	if err != nil {
		return Result{}, err
	}
	manifest, err := d.src.FetchManifest(ctx, t)
	if err != nil {
		return Result{}, err
	}
	sel, err := media.SelectBest(manifest)
	if err != nil {
		return Result{}, err
	}
	out := d.renderer.MuxOutput(base)
	res := Result{Output: out, Selection: sel}

	logger := log.WithContext(ctx, d.logger)
	logger.Info().
		Str(log.FieldEvent, "download.start").
		Str("title", t.DisplayTitle()).
		Int("quality", sel.Video.Quality).
		Int("codec_id", sel.Video.CodecID).
		Int("audio_quality", sel.Audio.Quality).
		Str("output", out).
		Msg("download started")

	switch opts.Mode {
	case ModeStream:
		if err := d.muxer.MuxURLs(ctx, sel.Video.URLs(), sel.Audio.URLs(), out); err != nil {
			return res, err
		}
	default:
		if err := d.runFiles(ctx, base, sel, out, opts); err != nil {
			return res, err
		}
	}

	logger.Info().Str(log.FieldEvent, "download.done").Str("output", out).Msg("download finished")
	return res, nil
}

func (d *Downloader) runFiles(ctx context.Context, base string, sel media.Selection, out string, opts Options) error {
	videoPath := d.renderer.Track(base, "video")
	audioPath := d.renderer.Track(base, "audio")

	if _, err := d.fetcher.Fetch(ctx, sel.Video.URLs(), videoPath, progressFor(opts, "video")); err != nil {
		return fmt.Errorf("video track: %w", err)
	}
	if _, err := d.fetcher.Fetch(ctx, sel.Audio.URLs(), audioPath, progressFor(opts, "audio")); err != nil {
		return fmt.Errorf("audio track: %w", err)
	}
	if err := d.muxer.MuxFiles(ctx, videoPath, audioPath, out); err != nil {
		return err
	}
	if !opts.KeepTracks {
		_ = os.Remove(videoPath)
		_ = os.Remove(audioPath)
	}
	return nil
}

func progressFor(opts Options, kind string) ProgressFunc {
	if opts.Progress == nil {
		return nil
	}
	return func(written, total int64) { opts.Progress(kind, written, total) }
}
