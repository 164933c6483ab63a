// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNotPlaylist is returned for content without the #EXTM3U header.
var ErrNotPlaylist = errors.New("not an HLS playlist")

// PlaylistInfo summarizes a media playlist written by the packager.
type PlaylistInfo struct {
	Segments      []string
	TotalDuration time.Duration
	LastDuration  time.Duration
	// Complete is set by #EXT-X-ENDLIST or a VOD playlist type.
	Complete bool
}

// ParsePlaylist reads segment names and durations from a media playlist.
func ParsePlaylist(playlist string) (PlaylistInfo, error) {
	sc := bufio.NewScanner(strings.NewReader(playlist))
	var (
		info    PlaylistInfo
		header  bool
		pending time.Duration
		haveInf bool
		lineNo  int
	)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !header {
			if line != "#EXTM3U" {
				return PlaylistInfo{}, ErrNotPlaylist
			}
			header = true
			continue
		}

		switch {
		case line == "#EXT-X-ENDLIST", line == "#EXT-X-PLAYLIST-TYPE:VOD":
			info.Complete = true
		case strings.HasPrefix(line, "#EXTINF:"):
			raw, _, _ := strings.Cut(strings.TrimPrefix(line, "#EXTINF:"), ",")
			secs, err := strconv.ParseFloat(raw, 64)
			if err != nil || secs < 0 {
				return PlaylistInfo{}, fmt.Errorf("line %d: invalid EXTINF %q", lineNo, raw)
			}
			pending = time.Duration(secs * float64(time.Second))
			haveInf = true
		case strings.HasPrefix(line, "#"):
		default:
			if !haveInf {
				return PlaylistInfo{}, fmt.Errorf("line %d: segment %q without EXTINF", lineNo, line)
			}
			info.Segments = append(info.Segments, line)
			info.TotalDuration += pending
			info.LastDuration = pending
			haveInf = false
		}
	}
	if err := sc.Err(); err != nil {
		return PlaylistInfo{}, err
	}
	if !header {
		return PlaylistInfo{}, ErrNotPlaylist
	}
	return info, nil
}
