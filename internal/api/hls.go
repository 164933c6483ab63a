// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"bytes"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/bilihls/internal/hls"
	"github.com/ManuGH/bilihls/internal/log"
	"github.com/ManuGH/bilihls/internal/media"
	"github.com/ManuGH/bilihls/internal/platform/httpx"
)

// handlePlaylist makes sure packaging runs for the key and returns the
// playlist once it has content. 503 if it does not appear within the budget.
func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	key, err := hls.ParseKey(chi.URLParam(r, "seasonID"), chi.URLParam(r, "sort"))
	if err != nil {
		writeProblem(w, http.StatusNotFound, "invalid_key", err.Error())
		return
	}
	ctx := log.ContextWithJobID(r.Context(), key.String())
	logger := log.WithContext(ctx, s.logger)

	dir, err := s.packager.Ensure(ctx, key)
	if err != nil {
		status, _, msg := classify(err)
		logger.Error().Err(err).Str(log.FieldEvent, "hls.ensure_failed").Int("status", status).Msg("packaging unavailable")
		writeProblem(w, status, problemCode(err), msg)
		return
	}

	body, err := hls.WaitForManifest(ctx, filepath.Join(dir, hls.PlaylistName), s.opts.PlaylistRetries, s.opts.PollInterval)
	if err != nil {
		if errors.Is(err, media.ErrTimeout) {
			logger.Warn().Str(log.FieldEvent, "hls.playlist_timeout").Msg("playlist not ready in time")
			writeProblem(w, http.StatusServiceUnavailable, "playlist_timeout", "playlist is not ready yet")
			return
		}
		if r.Context().Err() != nil {
			return
		}
		status, _, msg := classify(err)
		writeProblem(w, status, problemCode(err), msg)
		return
	}

	w.Header().Set(httpx.HeaderContentType, httpx.ContentTypeHLSPlaylist)
	w.Header().Set(httpx.HeaderCacheControl, httpx.CacheNoStore)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(body)
	}
}

// handleSegment serves a segment once its size is stable. Segments are
// immutable, so they are cacheable and support range requests.
func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	key, err := hls.ParseKey(chi.URLParam(r, "seasonID"), chi.URLParam(r, "sort"))
	if err != nil {
		writeProblem(w, http.StatusNotFound, "invalid_key", err.Error())
		return
	}
	name := chi.URLParam(r, "segment")
	path, err := s.packager.SegmentPath(key, name)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "invalid_segment", err.Error())
		return
	}

	data, err := hls.WaitForSegment(r.Context(), path, s.opts.SegmentRetries, s.opts.PollInterval)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeProblem(w, http.StatusNotFound, "segment_not_found", "segment does not exist")
		return
	}

	w.Header().Set(httpx.HeaderContentType, httpx.ContentTypeHLSSegment)
	w.Header().Set(httpx.HeaderCacheControl, httpx.CacheSegmentOneDay)
	http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(data))
}
