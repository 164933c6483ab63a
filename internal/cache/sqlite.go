// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/bilihls/internal/persistence/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS cache_entries (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS cache_entries_expires ON cache_entries (expires_at);`

// SQLiteCache persists entries in an embedded database so metadata survives
// restarts of the CLI.
type SQLiteCache struct {
	db     *sql.DB
	logger zerolog.Logger
	stats  counters
	now    func() time.Time
}

// NewSQLiteCache opens or creates the database at path, checks its
// integrity and drops expired rows.
func NewSQLiteCache(ctx context.Context, path string, logger zerolog.Logger) (*SQLiteCache, error) {
	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if issues, err := sqlite.VerifyIntegrity(ctx, db, false); err != nil || issues != nil {
		_ = db.Close()
		if err == nil {
			err = fmt.Errorf("corrupt database: %v", issues)
		}
		return nil, fmt.Errorf("sqlite cache %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite cache schema: %w", err)
	}

	c := &SQLiteCache{db: db, logger: logger, now: time.Now}
	n := c.deleteExpired(ctx)
	logger.Info().Str("path", path).Int("expired_dropped", n).Msg("opened SQLite cache")
	return c, nil
}

// Get retrieves a live value. Database errors count as misses.
func (c *SQLiteCache) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var val []byte
	err := c.db.QueryRowContext(ctx,
		"SELECT value FROM cache_entries WHERE key = ? AND expires_at > ?",
		key, c.now().UnixMilli()).Scan(&val)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.logger.Warn().Err(err).Str("key", key).Msg("sqlite get failed")
		}
		c.stats.misses.Add(1)
		return nil, false
	}
	c.stats.hits.Add(1)
	return val, true
}

// Set upserts a value with TTL. Non-positive TTLs are not stored.
func (c *SQLiteCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, c.now().Add(ttl).UnixMilli())
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("sqlite set failed")
		return
	}
	c.stats.sets.Add(1)
}

// Delete removes a value.
func (c *SQLiteCache) Delete(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := c.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE key = ?", key); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("sqlite delete failed")
	}
}

// Stats returns cache statistics; CurrentSize counts live rows.
func (c *SQLiteCache) Stats() Stats {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var size int
	if err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM cache_entries WHERE expires_at > ?", c.now().UnixMilli()).Scan(&size); err != nil {
		c.logger.Warn().Err(err).Msg("sqlite count failed")
	}
	return c.stats.snapshot(size)
}

// Close closes the database.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

func (c *SQLiteCache) deleteExpired(ctx context.Context) int {
	res, err := c.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE expires_at <= ?", c.now().UnixMilli())
	if err != nil {
		c.logger.Warn().Err(err).Msg("sqlite expiry sweep failed")
		return 0
	}
	n, _ := res.RowsAffected()
	c.stats.evictions.Add(n)
	return int(n)
}
