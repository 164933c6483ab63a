// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the effective configuration and joins every violation.
func Validate(cfg AppConfig) error {
	var errs []error

	if strings.TrimSpace(cfg.API.ListenAddr) == "" {
		errs = append(errs, errors.New("api.listenAddr must not be empty"))
	}
	if cfg.API.SearchWorkers < 1 {
		errs = append(errs, fmt.Errorf("api.searchWorkers must be >= 1, got %d", cfg.API.SearchWorkers))
	}
	if cfg.API.RateLimitRPM < 0 {
		errs = append(errs, fmt.Errorf("api.rateLimitRPM must be >= 0, got %d", cfg.API.RateLimitRPM))
	}
	for name, raw := range map[string]string{
		"upstream.apiBase":      cfg.Upstream.APIBase,
		"upstream.passportBase": cfg.Upstream.PassportBase,
		"upstream.referer":      cfg.Upstream.Referer,
	} {
		if err := validateHTTPURL(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if cfg.Upstream.Timeout <= 0 {
		errs = append(errs, errors.New("upstream.timeout must be positive"))
	}
	if cfg.Upstream.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("upstream.requestsPerSecond must be >= 0"))
	}
	if cfg.HLS.FFmpegBin == "" {
		errs = append(errs, errors.New("hls.ffmpegBin must not be empty"))
	}
	if cfg.HLS.SegmentSeconds < 1 {
		errs = append(errs, fmt.Errorf("hls.segmentSeconds must be >= 1, got %d", cfg.HLS.SegmentSeconds))
	}
	if cfg.HLS.PlaylistRetries < 1 || cfg.HLS.SegmentRetries < 1 {
		errs = append(errs, errors.New("hls retry budgets must be >= 1"))
	}
	if cfg.HLS.PollInterval <= 0 {
		errs = append(errs, errors.New("hls.pollInterval must be positive"))
	}
	switch cfg.Cache.Backend {
	case "memory", "sqlite":
	case "redis":
		if cfg.Cache.RedisAddr == "" {
			errs = append(errs, errors.New("cache.redisAddr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend must be memory, sqlite or redis, got %q", cfg.Cache.Backend))
	}
	if cfg.Metrics.Enabled && cfg.Metrics.ListenAddr == "" {
		errs = append(errs, errors.New("metrics.listenAddr is required when metrics are enabled"))
	}
	if cfg.Tracing.Enabled {
		if cfg.Tracing.Exporter != "grpc" && cfg.Tracing.Exporter != "http" {
			errs = append(errs, fmt.Errorf("tracing.exporter must be grpc or http, got %q", cfg.Tracing.Exporter))
		}
		if cfg.Tracing.SamplingRate < 0 || cfg.Tracing.SamplingRate > 1 {
			errs = append(errs, errors.New("tracing.samplingRate must be within [0,1]"))
		}
	}
	return errors.Join(errs...)
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	return nil
}
