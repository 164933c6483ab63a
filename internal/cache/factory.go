// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/bilihls/internal/config"
	"github.com/rs/zerolog"
)

// New builds the cache selected by cfg.Backend.
func New(ctx context.Context, cfg config.CacheConfig, logger zerolog.Logger) (Cache, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryCache(time.Minute), nil
	case "redis":
		return NewRedisCache(ctx, RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
	case "sqlite":
		return NewSQLiteCache(ctx, cfg.SQLitePath, logger)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
