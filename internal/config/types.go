// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the application configuration. The loaded AppConfig is
// a plain value: callers receive a copy and treat it as a read-only snapshot.
package config

import "time"

// AppConfig is the effective configuration after defaults, file and
// environment have been applied.
type AppConfig struct {
	Version   string `yaml:"-" toml:"-"`
	DataDir   string `yaml:"dataDir" toml:"data_dir"`
	LogLevel  string `yaml:"logLevel" toml:"log_level"`
	LogFormat string `yaml:"logFormat" toml:"log_format"`

	API      APIConfig      `yaml:"api" toml:"api"`
	Upstream UpstreamConfig `yaml:"upstream" toml:"upstream"`
	Session  SessionConfig  `yaml:"session" toml:"session"`
	HLS      HLSConfig      `yaml:"hls" toml:"hls"`
	Storage  StorageConfig  `yaml:"storage" toml:"storage"`
	Cache    CacheConfig    `yaml:"cache" toml:"cache"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing" toml:"tracing"`
}

// APIConfig configures the HTTP listener.
type APIConfig struct {
	ListenAddr     string   `yaml:"listenAddr" toml:"listen_addr"`
	PublicBase     string   `yaml:"publicBase" toml:"public_base"`
	AllowedOrigins []string `yaml:"allowedOrigins" toml:"allowed_origins"`
	RateLimitRPM   int      `yaml:"rateLimitRPM" toml:"rate_limit_rpm"`
	SearchWorkers  int      `yaml:"searchWorkers" toml:"search_workers"`
}

// UpstreamConfig describes the streaming platform endpoints and client behaviour.
type UpstreamConfig struct {
	APIBase           string        `yaml:"apiBase" toml:"api_base"`
	PassportBase      string        `yaml:"passportBase" toml:"passport_base"`
	Referer           string        `yaml:"referer" toml:"referer"`
	Origin            string        `yaml:"origin" toml:"origin"`
	UserAgent         string        `yaml:"userAgent" toml:"user_agent"`
	Timeout           time.Duration `yaml:"timeout" toml:"timeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond" toml:"requests_per_second"`
	WBIKeyTTL         time.Duration `yaml:"wbiKeyTTL" toml:"wbi_key_ttl"`
}

// SessionConfig locates the persisted credential state.
type SessionConfig struct {
	CookiePath string `yaml:"cookiePath" toml:"cookie_path"`
}

// HLSConfig configures the packaging pipeline and the segment polling budgets.
type HLSConfig struct {
	Root            string        `yaml:"root" toml:"root"`
	FFmpegBin       string        `yaml:"ffmpegBin" toml:"ffmpeg_bin"`
	FFmpegLogLevel  string        `yaml:"ffmpegLogLevel" toml:"ffmpeg_log_level"`
	SegmentSeconds  int           `yaml:"segmentSeconds" toml:"segment_seconds"`
	PlaylistRetries int           `yaml:"playlistRetries" toml:"playlist_retries"`
	SegmentRetries  int           `yaml:"segmentRetries" toml:"segment_retries"`
	PollInterval    time.Duration `yaml:"pollInterval" toml:"poll_interval"`
}

// StorageConfig controls where downloads land and how they are named.
type StorageConfig struct {
	BaseDir        string `yaml:"baseDir" toml:"base_dir"`
	SeriesTemplate string `yaml:"seriesTemplate" toml:"series_template"`
	VideoTemplate  string `yaml:"videoTemplate" toml:"video_template"`
	StreamSuffix   string `yaml:"streamSuffix" toml:"stream_suffix"`
	StreamExt      string `yaml:"streamExt" toml:"stream_ext"`
}

// CacheConfig selects the metadata cache backend.
type CacheConfig struct {
	Backend       string        `yaml:"backend" toml:"backend"`
	SeasonTTL     time.Duration `yaml:"seasonTTL" toml:"season_ttl"`
	RedisAddr     string        `yaml:"redisAddr" toml:"redis_addr"`
	RedisPassword string        `yaml:"redisPassword" toml:"redis_password"`
	RedisDB       int           `yaml:"redisDB" toml:"redis_db"`
	SQLitePath    string        `yaml:"sqlitePath" toml:"sqlite_path"`
}

// MetricsConfig configures the Prometheus listener.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled" toml:"enabled"`
	ListenAddr string `yaml:"listenAddr" toml:"listen_addr"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" toml:"enabled"`
	Exporter     string  `yaml:"exporter" toml:"exporter"`
	Endpoint     string  `yaml:"endpoint" toml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate" toml:"sampling_rate"`
}
