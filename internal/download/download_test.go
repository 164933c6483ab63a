// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/bilihls/internal/config"
	"github.com/ManuGH/bilihls/internal/ffmpeg"
	"github.com/ManuGH/bilihls/internal/media"
	"github.com/ManuGH/bilihls/internal/storage"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/broken", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	})
	mux.HandleFunc("/video.m4s", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Referer") != "https://www.bilibili.com" {
			http.Error(w, "referer required", http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("VIDEO-BYTES"))
	})
	mux.HandleFunc("/audio.m4s", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("AUDIO"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

var testHeaders = ffmpeg.Headers{Referer: "https://www.bilibili.com", UserAgent: "test"}

func TestFetchFallsBackToNextCandidate(t *testing.T) {
	srv := newServer(t)
	dest := filepath.Join(t.TempDir(), "a", "v.m4s")
	f := NewFetcher(srv.Client(), testHeaders, zerolog.Nop())

	var last int64
	used, err := f.Fetch(context.Background(),
		[]string{srv.URL + "/broken", srv.URL + "/video.m4s"}, dest,
		func(written, _ int64) { last = written })
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/video.m4s", used)
	assert.EqualValues(t, len("VIDEO-BYTES"), last)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "VIDEO-BYTES", string(data))
}

func TestFetchExhausted(t *testing.T) {
	srv := newServer(t)
	dest := filepath.Join(t.TempDir(), "v.m4s")
	f := NewFetcher(srv.Client(), testHeaders, zerolog.Nop())

	_, err := f.Fetch(context.Background(), []string{srv.URL + "/broken", srv.URL + "/missing"}, dest, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, media.ErrExhaustedFallback))
	assert.Contains(t, err.Error(), "HTTP 403")
	assert.Contains(t, err.Error(), "HTTP 404")
	assert.NoFileExists(t, dest, "failed attempts leave nothing behind")
}

func TestFetchMissingHeaderFails(t *testing.T) {
	srv := newServer(t)
	f := NewFetcher(srv.Client(), ffmpeg.Headers{}, zerolog.Nop())
	_, err := f.Fetch(context.Background(), []string{srv.URL + "/video.m4s"}, filepath.Join(t.TempDir(), "v"), nil)
	assert.True(t, errors.Is(err, media.ErrExhaustedFallback))
}

func TestFetchNoUsableURL(t *testing.T) {
	f := NewFetcher(nil, testHeaders, zerolog.Nop())
	_, err := f.Fetch(context.Background(), []string{"file:///etc/passwd", "::"}, filepath.Join(t.TempDir(), "v"), nil)
	assert.True(t, errors.Is(err, media.ErrNotFound))
}

func TestFetchCanceled(t *testing.T) {
	srv := newServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := NewFetcher(srv.Client(), testHeaders, zerolog.Nop())
	_, err := f.Fetch(ctx, []string{srv.URL + "/video.m4s", srv.URL + "/audio.m4s"}, filepath.Join(t.TempDir(), "v"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

// fakeExec records invocations and writes the output file named last in args.
type fakeExec struct {
	mu    sync.Mutex
	calls [][]string
	fail  func(args []string) error
}

func (f *fakeExec) Run(_ context.Context, args []string) error {
	f.mu.Lock()
	f.calls = append(f.calls, args)
	f.mu.Unlock()
	if f.fail != nil {
		if err := f.fail(args); err != nil {
			return err
		}
	}
	return os.WriteFile(args[len(args)-1], []byte("muxed"), 0o600)
}

func TestMuxArgs(t *testing.T) {
	args := MuxArgs([]string{"-i", "v", "-i", "a"}, "out.mp4.part", "mp4")
	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "error", "-nostdin", "-progress", "pipe:1", "-nostats",
		"-i", "v", "-i", "a",
		"-map", "0:v:0", "-map", "1:a:0", "-c", "copy",
		"-movflags", "+faststart",
		"-f", "mp4", "-y", "out.mp4.part",
	}, args)

	mkv := MuxArgs(nil, "o.mkv.part", containerFormat("o.mkv"))
	assert.NotContains(t, mkv, "-movflags")
	assert.Contains(t, mkv, "matroska")
}

func TestMuxFilesRenamesPart(t *testing.T) {
	exec := &fakeExec{}
	m := NewMuxer(exec, testHeaders, zerolog.Nop())
	out := filepath.Join(t.TempDir(), "show", "ep.mp4")

	require.NoError(t, m.MuxFiles(context.Background(), "v.m4s", "a.m4s", out))
	assert.FileExists(t, out)
	assert.NoFileExists(t, out+partSuffix)
	require.Len(t, exec.calls, 1)
	assert.NotContains(t, exec.calls[0], "-headers", "local inputs carry no headers")
}

func TestMuxURLsFallsBackPairwise(t *testing.T) {
	exec := &fakeExec{fail: func(args []string) error {
		if slices.Contains(args, "https://h1/v") {
			return errors.New("exit status 1")
		}
		return nil
	}}
	m := NewMuxer(exec, testHeaders, zerolog.Nop())
	out := filepath.Join(t.TempDir(), "out.mp4")

	err := m.MuxURLs(context.Background(),
		[]string{"https://h1/v", "https://h2/v"}, []string{"https://h1/a"}, out)
	require.NoError(t, err)
	require.Len(t, exec.calls, 2)
	assert.Contains(t, exec.calls[1], "https://h2/v")
	assert.Contains(t, exec.calls[1], "https://h1/a", "audio list is shorter and reuses its last entry")
	assert.Contains(t, exec.calls[1], "-user_agent")
	assert.Contains(t, exec.calls[1], testHeaders.String())
}

func TestMuxURLsExhausted(t *testing.T) {
	exec := &fakeExec{fail: func([]string) error { return errors.New("exit status 1") }}
	m := NewMuxer(exec, testHeaders, zerolog.Nop())
	out := filepath.Join(t.TempDir(), "out.mp4")

	err := m.MuxURLs(context.Background(), []string{"https://h1/v"}, []string{"https://h1/a"}, out)
	assert.True(t, errors.Is(err, media.ErrExhaustedFallback))
	assert.NoFileExists(t, out)
}

type fakeSource struct {
	manifest media.TrackManifest
	err      error
}

func (f fakeSource) FetchManifest(context.Context, media.Target) (media.TrackManifest, error) {
	return f.manifest, f.err
}

func TestDownloaderFilesMode(t *testing.T) {
	srv := newServer(t)
	base := t.TempDir()
	src := fakeSource{manifest: media.TrackManifest{
		Video: []media.VideoTrack{{Quality: 80, CodecID: media.CodecAVC, BaseURL: srv.URL + "/video.m4s"}},
		Audio: []media.AudioTrack{{Quality: 30280, BaseURL: srv.URL + "/broken", BackupURLs: []string{srv.URL + "/audio.m4s"}}},
	}}
	exec := &fakeExec{}
	d := NewDownloader(src,
		NewFetcher(srv.Client(), testHeaders, zerolog.Nop()),
		NewMuxer(exec, testHeaders, zerolog.Nop()),
		storage.NewRenderer(config.StorageConfig{BaseDir: base}),
		zerolog.Nop())

	var kinds []string
	res, err := d.Run(context.Background(), media.VideoTarget{AID: 1, CID: 2, Title: "clip"}, Options{
		Progress: func(kind string, _, _ int64) {
			if len(kinds) == 0 || kinds[len(kinds)-1] != kind {
				kinds = append(kinds, kind)
			}
		},
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "clip.mp4"), res.Output)
	assert.FileExists(t, res.Output)
	assert.Equal(t, []string{"video", "audio"}, kinds)
	assert.NoFileExists(t, filepath.Join(base, "clip.video.m4s"), "tracks are removed after muxing")
	require.Len(t, exec.calls, 1)
	assert.Contains(t, exec.calls[0], filepath.Join(base, "clip.audio.m4s"))
}

func TestDownloaderStreamMode(t *testing.T) {
	base := t.TempDir()
	src := fakeSource{manifest: media.TrackManifest{
		Video: []media.VideoTrack{{Quality: 80, BaseURL: "https://cdn/v"}},
		Audio: []media.AudioTrack{{Quality: 30280, BaseURL: "https://cdn/a"}},
	}}
	exec := &fakeExec{}
	d := NewDownloader(src, NewFetcher(nil, testHeaders, zerolog.Nop()),
		NewMuxer(exec, testHeaders, zerolog.Nop()),
		storage.NewRenderer(config.StorageConfig{BaseDir: base, StreamSuffix: ".stream"}),
		zerolog.Nop())

	res, err := d.Run(context.Background(), media.VideoTarget{Title: "live"}, Options{Mode: ModeStream})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "live.stream.mp4"), res.Output)
	require.Len(t, exec.calls, 1)
	assert.Contains(t, exec.calls[0], "https://cdn/v")
}

func TestDownloaderPropagatesManifestError(t *testing.T) {
	want := fmt.Errorf("wrapped: %w", media.ErrUpstreamProtocol)
	d := NewDownloader(fakeSource{err: want}, nil, nil,
		storage.NewRenderer(config.StorageConfig{BaseDir: t.TempDir()}), zerolog.Nop())
	_, err := d.Run(context.Background(), media.VideoTarget{Title: "x"}, Options{})
	assert.ErrorIs(t, err, media.ErrUpstreamProtocol)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("stream")
	require.NoError(t, err)
	assert.Equal(t, ModeStream, m)
	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeFiles, m)
	_, err = ParseMode("torrent")
	assert.Error(t, err)
}
