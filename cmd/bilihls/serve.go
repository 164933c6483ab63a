// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ManuGH/bilihls/internal/api"
	"github.com/ManuGH/bilihls/internal/daemon"
	"github.com/ManuGH/bilihls/internal/hls"
	"github.com/ManuGH/bilihls/internal/log"
	"github.com/ManuGH/bilihls/internal/telemetry"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve HLS presentations and the catalog API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.API.ListenAddr = listen
			}
			logger := log.WithComponent("daemon")

			provider, err := telemetry.NewProvider(cmd.Context(), telemetry.Config{
				Enabled:        cfg.Tracing.Enabled,
				ServiceName:    "bilihls",
				ServiceVersion: cfg.Version,
				ExporterType:   cfg.Tracing.Exporter,
				Endpoint:       cfg.Tracing.Endpoint,
				SamplingRate:   cfg.Tracing.SamplingRate,
			})
			if err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}

			svc, err := buildServices(cmd.Context(), cfg)
			if err != nil {
				_ = provider.Shutdown(context.Background())
				return err
			}

			packager := hls.NewManager(svc.client, svc.ffmpegRunner(), hls.Options{
				Root:           cfg.HLS.Root,
				Headers:        svc.headers,
				SegmentSeconds: cfg.HLS.SegmentSeconds,
				LogLevel:       cfg.HLS.FFmpegLogLevel,
			}, log.WithComponent("hls"))
			server := api.New(svc.client, packager, api.OptionsFromConfig(cfg), log.WithComponent("api"))

			var metricsHandler http.Handler
			metricsAddr := ""
			if cfg.Metrics.Enabled {
				metricsHandler = promhttp.Handler()
				metricsAddr = cfg.Metrics.ListenAddr
			}

			mgr, err := daemon.NewManager(daemon.ServerConfigFrom(cfg), daemon.Deps{
				Logger:         logger,
				APIHandler:     server.Handler(),
				MetricsHandler: metricsHandler,
				MetricsAddr:    metricsAddr,
			})
			if err != nil {
				_ = svc.Close()
				_ = provider.Shutdown(context.Background())
				return err
			}
			// Hooks run in reverse: jobs drain before the cache and exporter close.
			mgr.RegisterShutdownHook("telemetry", provider.Shutdown)
			mgr.RegisterShutdownHook("cache", func(context.Context) error { return svc.Close() })
			mgr.RegisterShutdownHook("hls-jobs", daemon.WaitHook(packager.Wait))

			logger.Info().
				Str(log.FieldEvent, "startup").
				Str("addr", cfg.API.ListenAddr).
				Str("hls_root", cfg.HLS.Root).
				Bool("metrics", cfg.Metrics.Enabled).
				Bool("tracing", cfg.Tracing.Enabled).
				Msg("starting bilihls")

			return daemon.NewApp(logger, mgr).Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Override the API listen address")
	return cmd
}
