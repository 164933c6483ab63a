// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/ManuGH/bilihls/internal/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedisCache(context.Background(), RedisConfig{Addr: mr.Addr()}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func TestRedisCache_SetGet(t *testing.T) {
	mr, c := setupMiniRedis(t)
	ctx := context.Background()

	c.Set(ctx, "season:42", []byte(`{"season_id":42}`), 5*time.Minute)

	val, found := c.Get(ctx, "season:42")
	require.True(t, found)
	assert.Equal(t, `{"season_id":42}`, string(val))
	assert.True(t, mr.Exists("bilihls:season:42"), "keys are namespaced")

	stats := c.Stats()
	assert.EqualValues(t, 1, stats.Sets)
	assert.EqualValues(t, 1, stats.Hits)
	assert.Equal(t, 1, stats.CurrentSize)
}

func TestRedisCache_TTL(t *testing.T) {
	mr, c := setupMiniRedis(t)
	ctx := context.Background()

	c.Set(ctx, "wbi:keys", []byte("x"), time.Minute)
	mr.FastForward(2 * time.Minute)

	_, found := c.Get(ctx, "wbi:keys")
	assert.False(t, found)
	assert.EqualValues(t, 1, c.Stats().Misses)
}

func TestRedisCache_Delete(t *testing.T) {
	_, c := setupMiniRedis(t)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Minute)
	c.Delete(ctx, "k")
	_, found := c.Get(ctx, "k")
	assert.False(t, found)
	require.NoError(t, c.HealthCheck(ctx))
}

func TestRedisCache_ServerDown(t *testing.T) {
	mr, c := setupMiniRedis(t)
	mr.Close()

	_, found := c.Get(context.Background(), "k")
	assert.False(t, found)
	assert.Error(t, c.HealthCheck(context.Background()))
}

func TestNewRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), config.CacheConfig{Backend: "redis", RedisAddr: mr.Addr()}, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	_, err = NewRedisCache(context.Background(), RedisConfig{Addr: "127.0.0.1:1"}, zerolog.Nop())
	require.Error(t, err)
}
