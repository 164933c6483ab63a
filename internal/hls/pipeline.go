// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package hls packages remote episode streams into local HLS presentations on
// demand. The filesystem is the job registry: a playlist means the key has
// output, an exclusive marker file means a job is running.
package hls

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/ManuGH/bilihls/internal/ffmpeg"
	"github.com/ManuGH/bilihls/internal/log"
	"github.com/ManuGH/bilihls/internal/media"
	"github.com/ManuGH/bilihls/internal/metrics"
	"github.com/ManuGH/bilihls/internal/telemetry"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	markerName = ".lock"
	failedName = ".failed"
	// launchTimeout bounds resolution and manifest fetch once the marker is held.
	launchTimeout = time.Minute
)

// Source resolves episodes and their manifests.
type Source interface {
	Episode(ctx context.Context, seasonID int64, sort int) (media.EpisodeTarget, error)
	FetchManifest(ctx context.Context, target media.Target) (media.TrackManifest, error)
}

// Options configures a Manager.
type Options struct {
	Root           string
	Headers        Headers
	SegmentSeconds int
	LogLevel       string
}

// Manager runs at most one packaging job per key.
type Manager struct {
	src    Source
	runner ffmpeg.Runner
	opts   Options
	logger zerolog.Logger
	jobs   sync.WaitGroup
	now    func() time.Time
}

// NewManager builds a manager writing below opts.Root.
func NewManager(src Source, runner ffmpeg.Runner, opts Options, logger zerolog.Logger) *Manager {
	return &Manager{
		src:    src,
		runner: runner,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// Dir returns the output directory of key.
func (m *Manager) Dir(key media.PipelineKey) string {
	return key.Dir(m.opts.Root)
}

// Ensure makes sure output for key exists or is being generated and returns
// the output directory. It never starts a second job for a key whose marker
// is held, and returns at once when the playlist already exists.
func (m *Manager) Ensure(ctx context.Context, key media.PipelineKey) (dir string, err error) {
	if err := key.Validate(); err != nil {
		return "", media.Errorf(media.ErrNotFound, "ensure", "%v", err)
	}

	ctx = log.ContextWithJobID(ctx, key.String())
	ctx, span := telemetry.Tracer("bilihls.hls").Start(ctx, "hls.ensure")
	span.SetAttributes(telemetry.PipelineAttributes(key.SeasonID, key.Sort)...)
	defer func() {
		if err != nil {
			telemetry.RecordError(span, err, "ensure")
		}
		span.End()
	}()

	logger := log.WithContext(ctx, m.logger)
	dir = m.Dir(key)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	if fileExists(filepath.Join(dir, PlaylistName)) {
		metrics.PipelineDeduplicated.WithLabelValues(media.StateReady.String()).Inc()
		span.SetAttributes(attribute.String(telemetry.PipelineState, media.StateReady.String()))
		return dir, nil
	}

	acquired, err := m.acquire(dir)
	if err != nil {
		return "", err
	}
	if !acquired {
		metrics.PipelineDeduplicated.WithLabelValues(media.StateGenerating.String()).Inc()
		span.SetAttributes(attribute.String(telemetry.PipelineState, media.StateGenerating.String()))
		logger.Debug().Msg("packaging already in progress")
		return dir, nil
	}

	// The marker is held now; a disconnecting caller must not abort the launch.
	launchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), launchTimeout)
	defer cancel()
	if err := m.launch(launchCtx, key, dir); err != nil {
		m.fail(dir, err)
		m.release(dir)
		return "", err
	}
	span.SetAttributes(attribute.String(telemetry.PipelineState, media.StateGenerating.String()))
	return dir, nil
}

// acquire creates the marker exclusively. false means another job holds it.
func (m *Manager) acquire(dir string) (bool, error) {
	f, err := os.OpenFile(filepath.Join(dir, markerName), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("create marker: %w", err)
	}
	_, _ = fmt.Fprintf(f, "%d %s\n", os.Getpid(), m.now().UTC().Format(time.RFC3339))
	if err := f.Close(); err != nil {
		m.release(dir)
		return false, fmt.Errorf("write marker: %w", err)
	}
	_ = os.Remove(filepath.Join(dir, failedName))
	return true, nil
}

func (m *Manager) release(dir string) {
	if err := os.Remove(filepath.Join(dir, markerName)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.logger.Warn().Err(err).Str(log.FieldPath, dir).Msg("failed to remove marker")
	}
}

// fail removes the partial playlist and records why generation failed.
func (m *Manager) fail(dir string, cause error) {
	_ = os.Remove(filepath.Join(dir, PlaylistName))
	msg := m.now().UTC().Format(time.RFC3339) + " " + cause.Error() + "\n"
	if err := renameio.WriteFile(filepath.Join(dir, failedName), []byte(msg), 0o640); err != nil {
		m.logger.Warn().Err(err).Str(log.FieldPath, dir).Msg("failed to write failure record")
	}
}

func (m *Manager) launch(ctx context.Context, key media.PipelineKey, dir string) error {
	logger := log.WithContext(ctx, m.logger)

	target, err := m.src.Episode(ctx, key.SeasonID, key.Sort)
	if err != nil {
		metrics.PipelineFailures.WithLabelValues("resolve").Inc()
		return err
	}
	manifest, err := m.src.FetchManifest(ctx, target)
	if err != nil {
		metrics.PipelineFailures.WithLabelValues("manifest").Inc()
		return err
	}
	sel, err := media.SelectBest(manifest)
	if err != nil {
		metrics.PipelineFailures.WithLabelValues("select").Inc()
		return err
	}

	videoURL, audioURL := firstURL(sel.Video.URLs()), firstURL(sel.Audio.URLs())
	if videoURL == "" || audioURL == "" {
		metrics.PipelineFailures.WithLabelValues("select").Inc()
		return media.Errorf(media.ErrNotFound, "ensure", "no usable url for selected tracks")
	}

	copyVideo := sel.Video.CodecID == media.CodecAVC
	mode := "transcode"
	if copyVideo {
		mode = "copy"
	}
	trace.SpanFromContext(ctx).SetAttributes(append(
		telemetry.SelectionAttributes(sel.Video.Quality, sel.Video.CodecID, copyVideo),
		attribute.Int64(telemetry.EpisodeIDKey, target.EpisodeID),
		attribute.Int64(telemetry.AIDKey, target.AID),
		attribute.Int64(telemetry.CIDKey, target.CID),
	)...)

	inv := Invocation{
		VideoURL:       videoURL,
		AudioURL:       audioURL,
		CopyVideo:      copyVideo,
		Headers:        m.opts.Headers,
		OutputDir:      dir,
		SegmentSeconds: m.opts.SegmentSeconds,
		LogLevel:       m.opts.LogLevel,
	}

	logger.Info().
		Str(log.FieldEvent, "hls.launch").
		Int64(log.FieldEpisodeID, target.EpisodeID).
		Int(log.FieldQuality, sel.Video.Quality).
		Int(log.FieldCodec, sel.Video.CodecID).
		Int("audio_quality", sel.Audio.Quality).
		Str(log.FieldMode, mode).
		Msg("starting packager")

	proc, err := m.runner.Start(context.WithoutCancel(ctx), inv.Args())
	if err != nil {
		metrics.PipelineFailures.WithLabelValues("launch").Inc()
		return &media.Error{Kind: media.ErrPipelineLaunch, Op: "ensure", Detail: key.String(), Err: err}
	}

	metrics.PipelineLaunches.WithLabelValues(mode).Inc()
	metrics.PipelineActive.Inc()
	m.jobs.Add(1)
	go m.supervise(logger, dir, proc)
	return nil
}

// supervise waits for the packager and releases the marker afterwards.
func (m *Manager) supervise(logger zerolog.Logger, dir string, proc ffmpeg.Process) {
	start := m.now()
	defer m.jobs.Done()
	defer metrics.PipelineActive.Dec()
	defer m.release(dir)

	err := proc.Wait()
	if err == nil {
		err = checkPlaylist(filepath.Join(dir, PlaylistName))
	}
	elapsed := m.now().Sub(start)

	if err != nil {
		metrics.PipelineFailures.WithLabelValues("exit").Inc()
		metrics.PipelineDuration.WithLabelValues("failed").Observe(elapsed.Seconds())
		logger.Error().Err(err).Int(log.FieldPID, proc.Pid()).Msg("packager failed")
		m.fail(dir, err)
		return
	}
	metrics.PipelineDuration.WithLabelValues("completed").Observe(elapsed.Seconds())
	logger.Info().
		Str(log.FieldEvent, "hls.completed").
		Dur("elapsed", elapsed).
		Msg("packager finished")
}

func checkPlaylist(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path is built from a validated key
	if err != nil {
		return fmt.Errorf("read playlist: %w", err)
	}
	info, err := ParsePlaylist(string(data))
	if err != nil {
		return fmt.Errorf("parse playlist: %w", err)
	}
	if len(info.Segments) == 0 {
		return errors.New("playlist has no segments")
	}
	return nil
}

// State derives the state of key from its output directory. A held marker
// wins over an existing playlist since the playlist grows while generating.
func (m *Manager) State(key media.PipelineKey) media.PipelineState {
	dir := m.Dir(key)
	switch {
	case fileExists(filepath.Join(dir, markerName)):
		return media.StateGenerating
	case fileExists(filepath.Join(dir, PlaylistName)):
		return media.StateReady
	case fileExists(filepath.Join(dir, failedName)):
		return media.StateFailed
	default:
		return media.StateNotStarted
	}
}

// Wait blocks until all launched packagers have exited.
func (m *Manager) Wait() {
	m.jobs.Wait()
}

// SegmentPath returns the path of a segment of key, or ErrNotFound for names
// that are not plain segment files.
func (m *Manager) SegmentPath(key media.PipelineKey, name string) (string, error) {
	if !segmentNameRE.MatchString(name) {
		return "", media.Errorf(media.ErrNotFound, "segment", "invalid segment name %q", name)
	}
	return filepath.Join(m.Dir(key), name), nil
}

// ParseKey parses the path parameters of an HLS route.
func ParseKey(seasonID, sort string) (media.PipelineKey, error) {
	sid, err := strconv.ParseInt(seasonID, 10, 64)
	if err != nil {
		return media.PipelineKey{}, media.Errorf(media.ErrNotFound, "hls", "invalid season id %q", seasonID)
	}
	n, err := strconv.Atoi(sort)
	if err != nil {
		return media.PipelineKey{}, media.Errorf(media.ErrNotFound, "hls", "invalid sort %q", sort)
	}
	key := media.PipelineKey{SeasonID: sid, Sort: n}
	if err := key.Validate(); err != nil {
		return media.PipelineKey{}, media.Errorf(media.ErrNotFound, "hls", "%v", err)
	}
	return key, nil
}

func firstURL(urls []string) string {
	if p := media.Prioritize(urls); len(p) > 0 {
		return p[0]
	}
	return ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
