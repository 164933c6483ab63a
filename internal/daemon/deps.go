// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/bilihls/internal/config"
)

// Deps contains dependencies required by the daemon Manager.
type Deps struct {
	// Logger is the structured logger for the daemon
	Logger zerolog.Logger

	// APIHandler serves the HLS and catalog routes.
	APIHandler http.Handler

	// MetricsHandler and MetricsAddr enable the Prometheus listener when both are set.
	MetricsHandler http.Handler
	MetricsAddr    string
}

// Validate checks if the dependencies are valid.
func (d *Deps) Validate() error {
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	return nil
}

// ServerConfig holds the HTTP server limits.
type ServerConfig struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	MaxHeaderBytes  int
	ShutdownTimeout time.Duration
}

// ServerConfigFrom derives server limits from the API configuration. The
// write timeout covers the longest playlist wait with room to spare.
func ServerConfigFrom(cfg config.AppConfig) ServerConfig {
	wait := time.Duration(max(cfg.HLS.PlaylistRetries, cfg.HLS.SegmentRetries)) * cfg.HLS.PollInterval
	return ServerConfig{
		ListenAddr:      cfg.API.ListenAddr,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    max(30*time.Second, 2*wait),
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 15 * time.Second,
	}
}
