// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// DefaultUserAgent mimics a desktop browser; the platform rejects unknown agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		DataDir:   "data",
		LogLevel:  "info",
		LogFormat: "json",
		API: APIConfig{
			ListenAddr:    ":3000",
			RateLimitRPM:  600,
			SearchWorkers: 5,
		},
		Upstream: UpstreamConfig{
			APIBase:           "https://api.bilibili.com",
			PassportBase:      "https://passport.bilibili.com",
			Referer:           "https://www.bilibili.com",
			Origin:            "https://www.bilibili.com",
			UserAgent:         DefaultUserAgent,
			Timeout:           15 * time.Second,
			RequestsPerSecond: 8,
		},
		HLS: HLSConfig{
			FFmpegBin:       "ffmpeg",
			FFmpegLogLevel:  "warning",
			SegmentSeconds:  2,
			PlaylistRetries: 50,
			SegmentRetries:  80,
			PollInterval:    100 * time.Millisecond,
		},
		Storage: StorageConfig{
			BaseDir:        "downloads",
			SeriesTemplate: "{season_title}/[{ep}]{title}",
			VideoTemplate:  "{title}",
			StreamSuffix:   "",
			StreamExt:      "mp4",
		},
		Cache: CacheConfig{
			Backend:   "memory",
			SeasonTTL: 10 * time.Minute,
		},
		Metrics: MetricsConfig{
			ListenAddr: ":9100",
		},
		Tracing: TracingConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}
