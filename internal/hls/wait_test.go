// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/bilihls/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pollEvery = 20 * time.Millisecond

func TestWaitForManifest_AppearsAfterThreePolls(t *testing.T) {
	path := filepath.Join(t.TempDir(), PlaylistName)
	go func() {
		time.Sleep(3*pollEvery + pollEvery/2)
		_ = os.WriteFile(path, []byte(samplePlaylist), 0o600)
	}()

	data, err := WaitForManifest(context.Background(), path, 10, pollEvery)
	require.NoError(t, err)
	assert.Equal(t, samplePlaylist, string(data))
}

func TestWaitForManifest_Timeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), PlaylistName)
	start := time.Now()
	_, err := WaitForManifest(context.Background(), path, 10, pollEvery)
	assert.ErrorIs(t, err, media.ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 9*pollEvery)
}

func TestWait_NoSleepAfterLastPoll(t *testing.T) {
	dir := t.TempDir()

	start := time.Now()
	_, err := WaitForManifest(context.Background(), filepath.Join(dir, PlaylistName), 1, 2*time.Second)
	assert.ErrorIs(t, err, media.ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)

	start = time.Now()
	_, err = WaitForSegment(context.Background(), filepath.Join(dir, "0000000000.ts"), 1, 2*time.Second)
	assert.ErrorIs(t, err, media.ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitForManifest_IgnoresEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), PlaylistName)
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	_, err := WaitForManifest(context.Background(), path, 3, time.Millisecond)
	assert.ErrorIs(t, err, media.ErrTimeout)
}

func TestWaitForManifest_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := WaitForManifest(ctx, filepath.Join(t.TempDir(), "missing"), 100, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitForSegment_RequiresStableSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0000000000.ts")
	require.NoError(t, os.WriteFile(path, []byte("partial"), 0o600))

	go func() {
		time.Sleep(10 * time.Millisecond)
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return
		}
		_, _ = f.WriteString("-complete")
		_ = f.Close()
	}()

	data, err := WaitForSegment(context.Background(), path, 20, 150*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "partial-complete", string(data))
}

func TestWaitForSegment_NeedsTwoObservations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0000000000.ts")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	_, err := WaitForSegment(context.Background(), path, 1, time.Millisecond)
	assert.ErrorIs(t, err, media.ErrTimeout, "one observation is not enough")

	data, err := WaitForSegment(context.Background(), path, 2, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestWaitForSegment_MissingAndEmpty(t *testing.T) {
	dir := t.TempDir()
	_, err := WaitForSegment(context.Background(), filepath.Join(dir, "nope.ts"), 3, time.Millisecond)
	assert.ErrorIs(t, err, media.ErrTimeout)

	empty := filepath.Join(dir, "empty.ts")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	_, err = WaitForSegment(context.Background(), empty, 3, time.Millisecond)
	assert.ErrorIs(t, err, media.ErrTimeout)
}
