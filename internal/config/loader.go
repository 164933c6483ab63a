// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override key.
const EnvPrefix = "BILIHLS_"

// Loader handles configuration loading with precedence ENV > File > Defaults.
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// LoadDotEnv overlays .env and .env.local from dir onto the process
// environment. Missing files are ignored.
func LoadDotEnv(dir string) error {
	var files []string
	for _, name := range []string{".env", ".env.local"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			files = append(files, p)
		}
	}
	if len(files) == 0 {
		return nil
	}
	if err := godotenv.Overload(files...); err != nil {
		return fmt.Errorf("load dotenv: %w", err)
	}
	return nil
}

// Load applies defaults, then the config file, then environment overrides,
// normalises paths and validates the result.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)
	cfg.Version = l.version

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.HLS.Root == "" {
		cfg.HLS.Root = filepath.Join(cfg.DataDir, "hls")
	}
	if cfg.Cache.SQLitePath == "" {
		cfg.Cache.SQLitePath = filepath.Join(cfg.DataDir, "cache.sqlite")
	}
	if cfg.Session.CookiePath == "" {
		cfg.Session.CookiePath = filepath.Join(cfg.DataDir, "cookies.json")
	}

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes a YAML or TOML file onto cfg with strict parsing.
// Unknown fields are rejected to prevent silent misconfiguration.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("strict config parse error: %w", err)
		}
		if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
			return fmt.Errorf("config file contains multiple documents or trailing content")
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return fmt.Errorf("strict config parse error: %s", strict.String())
			}
			return fmt.Errorf("config parse error: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format: %s (yaml or toml)", ext)
	}
	return nil
}

func (l *Loader) key(name string) string {
	k := EnvPrefix + name
	l.ConsumedEnvKeys[k] = struct{}{}
	return k
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.DataDir = ParseString(l.key("DATA_DIR"), cfg.DataDir)
	cfg.LogLevel = ParseString(l.key("LOG_LEVEL"), cfg.LogLevel)
	cfg.LogFormat = ParseString(l.key("LOG_FORMAT"), cfg.LogFormat)

	cfg.API.ListenAddr = ParseString(l.key("LISTEN"), cfg.API.ListenAddr)
	cfg.API.PublicBase = ParseString(l.key("PUBLIC_BASE"), cfg.API.PublicBase)
	cfg.API.AllowedOrigins = ParseList(l.key("ALLOWED_ORIGINS"), cfg.API.AllowedOrigins)
	cfg.API.RateLimitRPM = ParseInt(l.key("RATE_LIMIT_RPM"), cfg.API.RateLimitRPM)
	cfg.API.SearchWorkers = ParseInt(l.key("SEARCH_WORKERS"), cfg.API.SearchWorkers)

	cfg.Upstream.APIBase = ParseString(l.key("UPSTREAM_API_BASE"), cfg.Upstream.APIBase)
	cfg.Upstream.PassportBase = ParseString(l.key("UPSTREAM_PASSPORT_BASE"), cfg.Upstream.PassportBase)
	cfg.Upstream.Referer = ParseString(l.key("UPSTREAM_REFERER"), cfg.Upstream.Referer)
	cfg.Upstream.Origin = ParseString(l.key("UPSTREAM_ORIGIN"), cfg.Upstream.Origin)
	cfg.Upstream.UserAgent = ParseString(l.key("USER_AGENT"), cfg.Upstream.UserAgent)
	cfg.Upstream.Timeout = ParseDuration(l.key("UPSTREAM_TIMEOUT"), cfg.Upstream.Timeout)
	cfg.Upstream.RequestsPerSecond = ParseFloat(l.key("UPSTREAM_RPS"), cfg.Upstream.RequestsPerSecond)
	cfg.Upstream.WBIKeyTTL = ParseDuration(l.key("WBI_KEY_TTL"), cfg.Upstream.WBIKeyTTL)

	cfg.Session.CookiePath = ParseString(l.key("COOKIE_PATH"), cfg.Session.CookiePath)

	cfg.HLS.Root = ParseString(l.key("HLS_ROOT"), cfg.HLS.Root)
	cfg.HLS.FFmpegBin = ParseString(l.key("FFMPEG_BIN"), cfg.HLS.FFmpegBin)
	cfg.HLS.FFmpegLogLevel = ParseString(l.key("FFMPEG_LOG_LEVEL"), cfg.HLS.FFmpegLogLevel)
	cfg.HLS.SegmentSeconds = ParseInt(l.key("HLS_SEGMENT_SECONDS"), cfg.HLS.SegmentSeconds)
	cfg.HLS.PlaylistRetries = ParseInt(l.key("HLS_PLAYLIST_RETRIES"), cfg.HLS.PlaylistRetries)
	cfg.HLS.SegmentRetries = ParseInt(l.key("HLS_SEGMENT_RETRIES"), cfg.HLS.SegmentRetries)
	cfg.HLS.PollInterval = ParseDuration(l.key("HLS_POLL_INTERVAL"), cfg.HLS.PollInterval)

	cfg.Storage.BaseDir = ParseString(l.key("STORAGE_DIR"), cfg.Storage.BaseDir)
	cfg.Storage.SeriesTemplate = ParseString(l.key("SERIES_TEMPLATE"), cfg.Storage.SeriesTemplate)
	cfg.Storage.VideoTemplate = ParseString(l.key("VIDEO_TEMPLATE"), cfg.Storage.VideoTemplate)

	cfg.Cache.Backend = ParseString(l.key("CACHE_BACKEND"), cfg.Cache.Backend)
	cfg.Cache.SeasonTTL = ParseDuration(l.key("CACHE_SEASON_TTL"), cfg.Cache.SeasonTTL)
	cfg.Cache.RedisAddr = ParseString(l.key("REDIS_ADDR"), cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = ParseString(l.key("REDIS_PASSWORD"), cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = ParseInt(l.key("REDIS_DB"), cfg.Cache.RedisDB)
	cfg.Cache.SQLitePath = ParseString(l.key("CACHE_SQLITE_PATH"), cfg.Cache.SQLitePath)

	cfg.Metrics.Enabled = ParseBool(l.key("METRICS_ENABLED"), cfg.Metrics.Enabled)
	cfg.Metrics.ListenAddr = ParseString(l.key("METRICS_LISTEN"), cfg.Metrics.ListenAddr)

	cfg.Tracing.Enabled = ParseBool(l.key("TRACING_ENABLED"), cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = ParseString(l.key("TRACING_EXPORTER"), cfg.Tracing.Exporter)
	cfg.Tracing.Endpoint = ParseString(l.key("TRACING_ENDPOINT"), cfg.Tracing.Endpoint)
	cfg.Tracing.SamplingRate = ParseFloat(l.key("TRACING_SAMPLING_RATE"), cfg.Tracing.SamplingRate)
}
