// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the HLS presentations and the catalog endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/ManuGH/bilihls/internal/api/middleware"
	"github.com/ManuGH/bilihls/internal/bili"
	"github.com/ManuGH/bilihls/internal/config"
	"github.com/ManuGH/bilihls/internal/hls"
	"github.com/ManuGH/bilihls/internal/media"
)

const defaultSearchWorkers = 5

// Catalog is the upstream metadata the catalog endpoints need.
type Catalog interface {
	Search(ctx context.Context, keyword string) ([]bili.SearchItem, error)
	Season(ctx context.Context, seasonID int64) (bili.Season, error)
	Seasons(ctx context.Context, ids []int64, workers int) map[int64]bili.Season
}

// Packager prepares HLS presentations on disk.
type Packager interface {
	Ensure(ctx context.Context, key media.PipelineKey) (string, error)
	SegmentPath(key media.PipelineKey, name string) (string, error)
}

// Options are the server settings taken from configuration.
type Options struct {
	Version        string
	PublicBase     string
	AllowedOrigins []string
	RateLimitRPM   int
	SearchWorkers  int

	PlaylistRetries int
	SegmentRetries  int
	PollInterval    time.Duration

	EnableMetrics  bool
	TracingService string
}

// OptionsFromConfig maps the application configuration onto Options.
func OptionsFromConfig(cfg config.AppConfig) Options {
	tracing := ""
	if cfg.Tracing.Enabled {
		tracing = "bilihls-api"
	}
	return Options{
		Version:         cfg.Version,
		PublicBase:      cfg.API.PublicBase,
		AllowedOrigins:  cfg.API.AllowedOrigins,
		RateLimitRPM:    cfg.API.RateLimitRPM,
		SearchWorkers:   cfg.API.SearchWorkers,
		PlaylistRetries: cfg.HLS.PlaylistRetries,
		SegmentRetries:  cfg.HLS.SegmentRetries,
		PollInterval:    cfg.HLS.PollInterval,
		EnableMetrics:   cfg.Metrics.Enabled,
		TracingService:  tracing,
	}
}

// Server holds the handler dependencies.
type Server struct {
	catalog  Catalog
	packager Packager
	opts     Options
	logger   zerolog.Logger
}

// New returns a Server. Zero poll budgets fall back to the package defaults
// of internal/hls.
func New(catalog Catalog, packager Packager, opts Options, logger zerolog.Logger) *Server {
	if opts.SearchWorkers <= 0 {
		opts.SearchWorkers = defaultSearchWorkers
	}
	if opts.PlaylistRetries <= 0 {
		opts.PlaylistRetries = hls.DefaultPlaylistRetries
	}
	if opts.SegmentRetries <= 0 {
		opts.SegmentRetries = hls.DefaultSegmentRetries
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = hls.DefaultPollInterval
	}
	return &Server{catalog: catalog, packager: packager, opts: opts, logger: logger}
}

// Handler builds the router with the canonical middleware stack.
func (s *Server) Handler() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		AllowedOrigins:        s.opts.AllowedOrigins,
		EnableSecurityHeaders: true,
		EnableMetrics:         s.opts.EnableMetrics,
		TracingService:        s.opts.TracingService,
		EnableLogging:         true,
		RateLimitRPM:          s.opts.RateLimitRPM,
	})
	r.Use(chimw.GetHead)

	r.Get("/", s.handleDescriptor)
	r.Get("/healthz", s.handleHealth)

	r.Get("/search", s.handleSearch)
	r.Get("/detail/{id}", s.handleDetail)
	r.Get("/html/{id}", s.handleHTML)

	r.Route("/hls/{seasonID}/{sort}", func(r chi.Router) {
		r.Get("/"+hls.PlaylistName, s.handlePlaylist)
		r.Get("/{segment}", s.handleSegment)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeProblem(w, http.StatusNotFound, "not_found", "no such route")
	})
	return r
}
