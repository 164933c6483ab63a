// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"time"

	"github.com/ManuGH/bilihls/internal/bili"
	"github.com/ManuGH/bilihls/internal/cache"
	"github.com/ManuGH/bilihls/internal/config"
	"github.com/ManuGH/bilihls/internal/download"
	"github.com/ManuGH/bilihls/internal/ffmpeg"
	"github.com/ManuGH/bilihls/internal/log"
	"github.com/ManuGH/bilihls/internal/platform/httpx"
	"github.com/ManuGH/bilihls/internal/session"
	"github.com/ManuGH/bilihls/internal/storage"
)

const (
	muxStartTimeout = 30 * time.Second
	muxStallTimeout = 2 * time.Minute
)

// services are the components shared by the subcommands.
type services struct {
	cfg     config.AppConfig
	store   *session.Store
	state   session.State
	jar     *cookiejar.Jar
	cache   cache.Cache
	client  *bili.Client
	headers ffmpeg.Headers
}

func buildServices(ctx context.Context, cfg config.AppConfig) (*services, error) {
	store := session.NewStore(cfg.Session.CookiePath, log.WithComponent("session"))
	state, err := store.Load()
	if err != nil {
		return nil, err
	}
	jar, err := state.Jar()
	if err != nil {
		return nil, err
	}

	c, err := cache.New(ctx, cfg.Cache, log.WithComponent("cache"))
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}

	authenticated := session.IsAuthenticated(state)
	client := bili.NewClient(httpx.NewClient(cfg.Upstream.Timeout, jar), c, bili.Options{
		APIBase:           cfg.Upstream.APIBase,
		PassportBase:      cfg.Upstream.PassportBase,
		Referer:           cfg.Upstream.Referer,
		Origin:            cfg.Upstream.Origin,
		UserAgent:         cfg.Upstream.UserAgent,
		Authenticated:     authenticated,
		RequestsPerSecond: cfg.Upstream.RequestsPerSecond,
		WBIKeyTTL:         cfg.Upstream.WBIKeyTTL,
		SeasonTTL:         cfg.Cache.SeasonTTL,
	}, log.WithComponent("bili"))

	logger := log.WithComponent("session")
	logger.Info().
		Str(log.FieldEvent, "session.loaded").
		Bool("authenticated", authenticated).
		Str(log.FieldPath, store.Path()).
		Msg("credential state loaded")

	return &services{
		cfg:    cfg,
		store:  store,
		state:  state,
		jar:    jar,
		cache:  c,
		client: client,
		headers: ffmpeg.Headers{
			Referer:   cfg.Upstream.Referer,
			Origin:    cfg.Upstream.Origin,
			UserAgent: cfg.Upstream.UserAgent,
			Cookie:    state.CookieHeader(session.PlatformDomains...),
		},
	}, nil
}

func (s *services) Close() error {
	return s.cache.Close()
}

func (s *services) ffmpegRunner() *ffmpeg.ExecRunner {
	return ffmpeg.NewExecRunner(s.cfg.HLS.FFmpegBin, log.WithComponent("ffmpeg"))
}

// downloader wires the fetcher and muxer. Media requests carry the cookies
// through the jar, so the fetcher headers leave Cookie empty.
func (s *services) downloader(baseDir string) *download.Downloader {
	storageCfg := s.cfg.Storage
	if baseDir != "" {
		storageCfg.BaseDir = baseDir
	}
	fetchHeaders := s.headers
	fetchHeaders.Cookie = ""
	runner := s.ffmpegRunner()
	runner.StartTimeout = muxStartTimeout
	runner.StallTimeout = muxStallTimeout
	logger := log.WithComponent("download")
	return download.NewDownloader(
		s.client,
		download.NewFetcher(httpx.NewStreamClient(s.jar), fetchHeaders, logger),
		download.NewMuxer(runner, s.headers, logger),
		storage.NewRenderer(storageCfg),
		logger,
	)
}
