// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package storage renders on-disk locations for downloaded media from the
// configured naming templates.
package storage

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/ManuGH/bilihls/internal/config"
	"github.com/ManuGH/bilihls/internal/media"
)

const (
	DefaultSeriesTemplate = "{season_title}/[{ep}]{title}"
	DefaultVideoTemplate  = "{title}"
	DefaultStreamExt      = "mp4"

	fallbackName = "bili"
)

// Renderer turns resolved targets into paths below a base directory.
type Renderer struct {
	baseDir        string
	seriesTemplate string
	videoTemplate  string
	streamSuffix   string
	streamExt      string
}

// NewRenderer returns a Renderer for cfg. Empty fields fall back to defaults.
func NewRenderer(cfg config.StorageConfig) *Renderer {
	r := &Renderer{
		baseDir:        cfg.BaseDir,
		seriesTemplate: cfg.SeriesTemplate,
		videoTemplate:  cfg.VideoTemplate,
		streamSuffix:   cfg.StreamSuffix,
		streamExt:      strings.TrimPrefix(cfg.StreamExt, "."),
	}
	if r.baseDir == "" {
		r.baseDir = "."
	}
	if r.seriesTemplate == "" {
		r.seriesTemplate = DefaultSeriesTemplate
	}
	if r.videoTemplate == "" {
		r.videoTemplate = DefaultVideoTemplate
	}
	if r.streamExt == "" {
		r.streamExt = DefaultStreamExt
	}
	return r
}

// SanitizeFilename makes name safe as a single path segment. Path
// separators, reserved characters and control characters become '_'.
func SanitizeFilename(name string) string {
	name = norm.NFC.String(name)
	s := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if unicode.IsControl(r) {
			return '_'
		}
		return r
	}, name)
	switch strings.TrimSpace(s) {
	case "":
		return fallbackName
	case ".", "..":
		return "_"
	}
	return s
}

// Base returns the extension-less base path for t.
func (r *Renderer) Base(t media.Target) (string, error) {
	var (
		tmpl string
		vars map[string]string
	)
	switch t := t.(type) {
	case media.VideoTarget:
		tmpl = r.videoTemplate
		vars = map[string]string{
			"title": SanitizeFilename(t.Title),
			"bvid":  SanitizeFilename(t.BVID),
			"aid":   strconv.FormatInt(t.AID, 10),
			"cid":   strconv.FormatInt(t.CID, 10),
		}
	case media.EpisodeTarget:
		if t.Pending() {
			return "", media.Errorf(media.ErrNotFound, "storage.base", "season %d has no episode selected", t.SeasonID)
		}
		tmpl = r.seriesTemplate
		vars = map[string]string{
			"season_title": SanitizeFilename(t.SeasonTitle),
			"title":        SanitizeFilename(t.DisplayTitle()),
			"ep":           strconv.Itoa(episodePosition(t)),
			"ep_id":        strconv.FormatInt(t.EpisodeID, 10),
			"aid":          strconv.FormatInt(t.AID, 10),
			"cid":          strconv.FormatInt(t.CID, 10),
		}
	default:
		return "", fmt.Errorf("storage: unsupported target %T", t)
	}

	rel := renderSegments(expand(tmpl, vars))
	if rel == "" {
		rel = fallbackName
	}
	return r.confine(rel)
}

// MuxOutput returns the final muxed file path for a base path.
func (r *Renderer) MuxOutput(base string) string {
	dir, stem := filepath.Split(base)
	if stem == "" {
		stem = fallbackName
	}
	return filepath.Join(dir, stem+r.streamSuffix+"."+r.streamExt)
}

// Track returns the path for a separately downloaded track next to base,
// e.g. "<base>.video.m4s".
func (r *Renderer) Track(base, kind string) string {
	return base + "." + kind + ".m4s"
}

// episodePosition is the 1-based position of the selected episode, or 0.
func episodePosition(t media.EpisodeTarget) int {
	for i, e := range t.Episodes {
		if e.PublicID() == t.EpisodeID {
			return i + 1
		}
	}
	return 0
}

func expand(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// renderSegments splits on '/', drops empty segments and sanitizes the rest.
func renderSegments(s string) string {
	var segs []string
	for _, seg := range strings.Split(s, "/") {
		if strings.TrimSpace(seg) == "" {
			continue
		}
		segs = append(segs, SanitizeFilename(seg))
	}
	return filepath.Join(segs...)
}

// confine joins rel to the base directory and rejects results that leave it.
func (r *Renderer) confine(rel string) (string, error) {
	full := filepath.Join(r.baseDir, rel)
	back, err := filepath.Rel(r.baseDir, full)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("storage: rendered path %q escapes %q", rel, r.baseDir)
	}
	return full, nil
}
