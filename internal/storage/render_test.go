// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/bilihls/internal/config"
	"github.com/ManuGH/bilihls/internal/media"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{`a/b\c:d*e?f"g<h>i|j`, "a_b_c_d_e_f_g_h_i_j"},
		{"tab\there", "tab_here"},
		{"", "bili"},
		{"   ", "bili"},
		{"..", "_"},
		{"é", "é"}, // NFC composes the accent
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), "SanitizeFilename(%q)", tt.in)
	}
}

func seriesTarget() media.EpisodeTarget {
	return media.EpisodeTarget{
		EpisodeID:   502,
		SeasonID:    40,
		AID:         9,
		CID:         10,
		Title:       "Hello: World",
		SeasonTitle: "My/Show",
		Episodes: []media.Episode{
			{EpisodeID: 501},
			{EpisodeID: 502},
		},
	}
}

func TestRendererSeriesDefault(t *testing.T) {
	r := NewRenderer(config.StorageConfig{BaseDir: "out"})

	base, err := r.Base(seriesTarget())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("out", "My_Show", "[2]Hello_ World"), base)
	assert.Equal(t, filepath.Join("out", "My_Show", "[2]Hello_ World.mp4"), r.MuxOutput(base))
}

func TestRendererVideoTemplateVars(t *testing.T) {
	r := NewRenderer(config.StorageConfig{
		BaseDir:       "dl",
		VideoTemplate: "{bvid}//{aid}-{cid}/{title}",
		StreamSuffix:  ".stream",
		StreamExt:     ".mkv",
	})

	base, err := r.Base(media.VideoTarget{AID: 1, CID: 2, BVID: "BV1xx411c7mD", Title: "t?"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("dl", "BV1xx411c7mD", "1-2", "t_"), base)
	assert.Equal(t, filepath.Join("dl", "BV1xx411c7mD", "1-2", "t_.stream.mkv"), r.MuxOutput(base))
	assert.Equal(t, base+".video.m4s", r.Track(base, "video"))
}

func TestRendererTraversalIsNeutralized(t *testing.T) {
	r := NewRenderer(config.StorageConfig{BaseDir: "dl", VideoTemplate: "../{title}"})

	base, err := r.Base(media.VideoTarget{Title: ".."})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("dl", "_", "_"), base)
}

func TestRendererPendingEpisode(t *testing.T) {
	r := NewRenderer(config.StorageConfig{})
	_, err := r.Base(media.EpisodeTarget{SeasonID: 1})
	assert.True(t, errors.Is(err, media.ErrNotFound))
}

func TestRendererUnknownEpisodePosition(t *testing.T) {
	tgt := seriesTarget()
	tgt.Episodes = nil
	base, err := NewRenderer(config.StorageConfig{BaseDir: "x"}).Base(tgt)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("x", "My_Show", "[0]Hello_ World"), base)
}
