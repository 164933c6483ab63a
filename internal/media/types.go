// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package media

import (
	"fmt"
	"path/filepath"
	"strconv"
)

// Reference is a parsed user reference. It is either a VideoRef or a SeriesRef.
type Reference interface {
	reference()
	String() string
}

// VideoRef names a standalone video by its asset code (BV... or av...).
type VideoRef struct {
	Code string
	// Page is the 1-based part of a multi-part video; 0 means the first part.
	Page int
}

// SeriesRef names a series by an ep, ss or md code.
type SeriesRef struct {
	Code string
	// Episode is the 1-based position in the episode list; 0 means unset.
	Episode int
}

func (VideoRef) reference()  {}
func (SeriesRef) reference() {}

func (r VideoRef) String() string {
	if r.Page > 0 {
		return r.Code + "?p=" + strconv.Itoa(r.Page)
	}
	return r.Code
}

func (r SeriesRef) String() string {
	if r.Episode > 0 {
		return r.Code + "#" + strconv.Itoa(r.Episode)
	}
	return r.Code
}

// Target is a resolved playback target. It is either a VideoTarget or an EpisodeTarget.
type Target interface {
	target()
	DisplayTitle() string
}

// VideoTarget identifies one part of a standalone video.
type VideoTarget struct {
	AID   int64
	CID   int64
	BVID  string
	Title string
}

// EpisodeTarget identifies one episode of a series, or the whole series when
// EpisodeID is zero. A non-zero EpisodeID implies non-zero AID and CID that
// belong to an entry of Episodes.
type EpisodeTarget struct {
	EpisodeID   int64
	SeasonID    int64
	AID         int64
	CID         int64
	Title       string
	SeasonTitle string
	Synopsis    string
	Episodes    []Episode
}

func (VideoTarget) target()   {}
func (EpisodeTarget) target() {}

// DisplayTitle returns the human readable title.
func (t VideoTarget) DisplayTitle() string { return t.Title }

// DisplayTitle returns the episode title, falling back to the season title.
func (t EpisodeTarget) DisplayTitle() string {
	if t.Title != "" {
		return t.Title
	}
	return t.SeasonTitle
}

// Pending reports whether the caller still has to pick an episode.
func (t EpisodeTarget) Pending() bool { return t.EpisodeID == 0 }

// Episode is one entry of a season episode list. Zero values mean absent.
type Episode struct {
	ID        int64
	EpisodeID int64
	AID       int64
	CID       int64
	BVID      string
	Title     string
	LongTitle string
	ShareURL  string
}

// PublicID returns the episode id, falling back to the internal id.
func (e Episode) PublicID() int64 {
	if e.EpisodeID != 0 {
		return e.EpisodeID
	}
	return e.ID
}

// Display returns the long title, then the short title, then fallback.
func (e Episode) Display(fallback string) string {
	switch {
	case e.LongTitle != "":
		return e.LongTitle
	case e.Title != "":
		return e.Title
	default:
		return fallback
	}
}

// Known codec ids used by the upstream manifests.
const (
	CodecAVC  = 7
	CodecHEVC = 12
	CodecAV1  = 13
)

// VideoTrack is one video rendition of a manifest.
type VideoTrack struct {
	Quality    int
	CodecID    int
	Width      int
	Height     int
	Bandwidth  int64
	BaseURL    string
	BackupURLs []string
}

// URLs returns the primary URL followed by the backups.
func (t VideoTrack) URLs() []string {
	return append([]string{t.BaseURL}, t.BackupURLs...)
}

// AudioTrack is one audio rendition of a manifest.
type AudioTrack struct {
	Quality    int
	Codecs     string
	Bandwidth  int64
	BaseURL    string
	BackupURLs []string
}

// URLs returns the primary URL followed by the backups.
func (t AudioTrack) URLs() []string {
	return append([]string{t.BaseURL}, t.BackupURLs...)
}

// TrackManifest lists the renditions offered for one target.
type TrackManifest struct {
	Video []VideoTrack
	Audio []AudioTrack
}

// PipelineKey identifies one packaged presentation.
type PipelineKey struct {
	SeasonID int64
	Sort     int
}

// Validate rejects keys that cannot name an episode.
func (k PipelineKey) Validate() error {
	if k.SeasonID <= 0 {
		return fmt.Errorf("invalid season id %d", k.SeasonID)
	}
	if k.Sort < 1 {
		return fmt.Errorf("invalid episode sort %d", k.Sort)
	}
	return nil
}

// Dir returns the output directory of the key below root.
func (k PipelineKey) Dir(root string) string {
	return filepath.Join(root, strconv.FormatInt(k.SeasonID, 10), strconv.Itoa(k.Sort))
}

func (k PipelineKey) String() string {
	return strconv.FormatInt(k.SeasonID, 10) + "/" + strconv.Itoa(k.Sort)
}

// PipelineState is derived from the files in a key's output directory.
type PipelineState int

const (
	StateNotStarted PipelineState = iota
	StateGenerating
	StateReady
	StateFailed
)

func (s PipelineState) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateGenerating:
		return "generating"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
