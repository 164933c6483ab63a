// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package download stores remote tracks on disk and muxes them into a
// single file with ffmpeg.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/ManuGH/bilihls/internal/ffmpeg"
	"github.com/ManuGH/bilihls/internal/log"
	"github.com/ManuGH/bilihls/internal/media"
	"github.com/ManuGH/bilihls/internal/metrics"
	platformnet "github.com/ManuGH/bilihls/internal/platform/net"
)

const copyBufferSize = 256 << 10

// ProgressFunc receives the bytes written so far and the expected total,
// which is -1 when the server sent no length.
type ProgressFunc func(written, total int64)

// Fetcher downloads a track, trying candidate URLs in order.
type Fetcher struct {
	client  *http.Client
	headers ffmpeg.Headers
	logger  zerolog.Logger
}

// NewFetcher returns a Fetcher sending headers with every request.
func NewFetcher(client *http.Client, headers ffmpeg.Headers, logger zerolog.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client, headers: headers, logger: logger}
}

// Fetch prioritizes urls and writes the first one that succeeds to dest.
// dest is replaced atomically, so a failed attempt never leaves a partial
// file behind. It returns the URL that was used. When every candidate
// fails the error is ErrExhaustedFallback wrapping each attempt's error.
func (f *Fetcher) Fetch(ctx context.Context, urls []string, dest string, progress ProgressFunc) (string, error) {
	candidates := platformnet.DirectURLs(media.Prioritize(urls))
	if len(candidates) == 0 {
		return "", media.Errorf(media.ErrNotFound, "download.fetch", "no usable url among %d candidates", len(urls))
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	logger := log.WithContext(ctx, f.logger)
	var errs []error
	for i, u := range candidates {
		start := time.Now()
		err := f.fetchOne(ctx, u, dest, progress)
		if err == nil {
			metrics.DownloadAttempts.WithLabelValues("success").Inc()
			logger.Info().
				Str(log.FieldEvent, "download.done").
				Str("url", platformnet.SanitizeURL(u)).
				Int("attempt", i+1).
				Dur("elapsed", time.Since(start)).
				Str("dest", dest).
				Msg("track downloaded")
			return u, nil
		}
		if ctx.Err() != nil {
			metrics.DownloadAttempts.WithLabelValues("canceled").Inc()
			return "", ctx.Err()
		}
		metrics.DownloadAttempts.WithLabelValues("failure").Inc()
		logger.Warn().Err(err).
			Str(log.FieldEvent, "download.fallback").
			Str("url", platformnet.SanitizeURL(u)).
			Int("attempt", i+1).
			Int("candidates", len(candidates)).
			Msg("candidate failed")
		errs = append(errs, err)
	}
	return "", &media.Error{Kind: media.ErrExhaustedFallback, Op: "download.fetch", Err: errors.Join(errs...)}
}

func (f *Fetcher) fetchOne(ctx context.Context, rawURL, dest string, progress ProgressFunc) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	setHeaders(req, f.headers)

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", platformnet.SanitizeURL(rawURL), err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: HTTP %d", platformnet.SanitizeURL(rawURL), resp.StatusCode)
	}

	pf, err := renameio.NewPendingFile(dest, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() { _ = pf.Cleanup() }()

	var w io.Writer = pf
	if progress != nil {
		w = &progressWriter{w: pf, total: resp.ContentLength, fn: progress}
	}
	n, err := io.CopyBuffer(w, resp.Body, make([]byte, copyBufferSize))
	if err != nil {
		return fmt.Errorf("copy body: %w", err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return fmt.Errorf("short body: got %d of %d bytes", n, resp.ContentLength)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", dest, err)
	}
	return nil
}

func setHeaders(req *http.Request, h ffmpeg.Headers) {
	set := func(name, value string) {
		if value != "" {
			req.Header.Set(name, value)
		}
	}
	set("Referer", h.Referer)
	set("Origin", h.Origin)
	set("User-Agent", h.UserAgent)
	set("Cookie", h.Cookie)
}

type progressWriter struct {
	w       io.Writer
	written int64
	total   int64
	fn      ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	p.fn(p.written, p.total)
	return n, err
}
