// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bili

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ManuGH/bilihls/internal/bili/wbi"
	"github.com/ManuGH/bilihls/internal/log"
	"github.com/ManuGH/bilihls/internal/media"
)

// qualityParams are the manifest request flags. Logged-in sessions may ask for
// 4K/HDR/Dolby renditions; anonymous sessions are capped at 720p.
type qualityParams struct {
	qn, fnval, fourk int64
}

var (
	authQuality = qualityParams{qn: 127, fnval: 4048, fourk: 1}
	anonQuality = qualityParams{qn: 64, fnval: 16, fourk: 0}
)

func (c *Client) quality() qualityParams {
	if c.opts.Authenticated {
		return authQuality
	}
	return anonQuality
}

// FetchManifest returns the track manifest of a resolved target.
func (c *Client) FetchManifest(ctx context.Context, target media.Target) (media.TrackManifest, error) {
	q := c.quality()

	var (
		endpoint, path string
		params         []wbi.Param
	)
	switch t := target.(type) {
	case media.VideoTarget:
		endpoint, path = "playurl", "/x/player/wbi/playurl"
		params = []wbi.Param{
			wbi.PInt("avid", t.AID),
			wbi.PInt("cid", t.CID),
		}
	case media.EpisodeTarget:
		if t.Pending() {
			return media.TrackManifest{}, media.Errorf(media.ErrNotFound, "manifest", "season %d: no episode selected", t.SeasonID)
		}
		endpoint, path = "pgc_playurl", "/pgc/player/web/v2/playurl"
		params = []wbi.Param{
			wbi.PInt("ep_id", t.EpisodeID),
			wbi.PInt("season_id", t.SeasonID),
		}
	default:
		return media.TrackManifest{}, fmt.Errorf("manifest: unsupported target %T", target)
	}
	params = append(params,
		wbi.PInt("qn", q.qn),
		wbi.PInt("fnval", q.fnval),
		wbi.PInt("fnver", 0),
		wbi.PInt("fourk", q.fourk),
	)

	rawURL, err := c.signedURL(ctx, path, params)
	if err != nil {
		return media.TrackManifest{}, err
	}

	var resp playurlResponse
	if err := c.getJSON(ctx, endpoint, rawURL, &resp); err != nil {
		return media.TrackManifest{}, err
	}
	if resp.Code != 0 {
		return media.TrackManifest{}, &media.Error{Kind: media.ErrUpstreamProtocol, Op: endpoint, Code: resp.Code, Detail: resp.Message}
	}

	dash := resp.dash()
	if dash == nil {
		return media.TrackManifest{}, media.Errorf(media.ErrUpstreamSchema, endpoint, "no dash manifest root")
	}
	m, err := parseDash(dash)
	if err != nil {
		return media.TrackManifest{}, fmt.Errorf("%s: %w", endpoint, err)
	}

	log.FromContext(ctx).Debug().
		Str(log.FieldEndpoint, endpoint).
		Int("video_tracks", len(m.Video)).
		Int("audio_tracks", len(m.Audio)).
		Msg("manifest fetched")
	return m, nil
}

type dashHolder struct {
	Dash json.RawMessage `json:"dash"`
}

type playurlResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    *dashHolder `json:"data"`
	Result  *struct {
		dashHolder
		VideoInfo *dashHolder `json:"video_info"`
	} `json:"result"`
}

// dash probes data.dash, result.dash and result.video_info.dash in order.
func (r *playurlResponse) dash() json.RawMessage {
	if r.Data != nil && !isNull(r.Data.Dash) {
		return r.Data.Dash
	}
	if r.Result != nil {
		if !isNull(r.Result.Dash) {
			return r.Result.Dash
		}
		if r.Result.VideoInfo != nil && !isNull(r.Result.VideoInfo.Dash) {
			return r.Result.VideoInfo.Dash
		}
	}
	return nil
}

// wireTrack accepts both spellings the platform uses for URL fields.
type wireTrack struct {
	ID          int      `json:"id"`
	CodecID     int      `json:"codecid"`
	Codecs      string   `json:"codecs"`
	Width       int      `json:"width"`
	Height      int      `json:"height"`
	Bandwidth   int64    `json:"bandwidth"`
	BaseSnake   string   `json:"base_url"`
	BaseCamel   string   `json:"baseUrl"`
	BackupSnake []string `json:"backup_url"`
	BackupCamel []string `json:"backupUrl"`
}

func (w wireTrack) urls() (string, []string, error) {
	base := w.BaseSnake
	if base == "" {
		base = w.BaseCamel
	}
	if base == "" {
		return "", nil, media.Errorf(media.ErrUpstreamSchema, "dash", "track %d has no base url", w.ID)
	}
	backups := w.BackupSnake
	if len(backups) == 0 {
		backups = w.BackupCamel
	}
	return base, append([]string(nil), backups...), nil
}

type wireDash struct {
	Video []wireTrack `json:"video"`
	Audio []wireTrack `json:"audio"`
	Dolby *struct {
		Audio []wireTrack `json:"audio"`
	} `json:"dolby"`
	Flac *struct {
		Audio *wireTrack `json:"audio"`
	} `json:"flac"`
}

func parseDash(raw json.RawMessage) (media.TrackManifest, error) {
	var d wireDash
	if err := json.Unmarshal(raw, &d); err != nil {
		return media.TrackManifest{}, &media.Error{Kind: media.ErrUpstreamSchema, Op: "dash", Err: err}
	}

	m := media.TrackManifest{
		Video: make([]media.VideoTrack, 0, len(d.Video)),
		Audio: make([]media.AudioTrack, 0, len(d.Audio)),
	}
	for _, v := range d.Video {
		base, backups, err := v.urls()
		if err != nil {
			return media.TrackManifest{}, err
		}
		m.Video = append(m.Video, media.VideoTrack{
			Quality:    v.ID,
			CodecID:    v.CodecID,
			Width:      v.Width,
			Height:     v.Height,
			Bandwidth:  v.Bandwidth,
			BaseURL:    base,
			BackupURLs: backups,
		})
	}

	audio := append([]wireTrack(nil), d.Audio...)
	if d.Dolby != nil {
		audio = append(audio, d.Dolby.Audio...)
	}
	if d.Flac != nil && d.Flac.Audio != nil {
		audio = append(audio, *d.Flac.Audio)
	}
	for _, a := range audio {
		base, backups, err := a.urls()
		if err != nil {
			return media.TrackManifest{}, err
		}
		m.Audio = append(m.Audio, media.AudioTrack{
			Quality:    a.ID,
			Codecs:     a.Codecs,
			Bandwidth:  a.Bandwidth,
			BaseURL:    base,
			BackupURLs: backups,
		})
	}
	return m, nil
}
