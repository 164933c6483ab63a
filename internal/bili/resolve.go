// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bili

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/bilihls/internal/log"
	"github.com/ManuGH/bilihls/internal/media"
)

var (
	bareCodeRE  = regexp.MustCompile(`(?i)^(BV[0-9A-Za-z]{10}|av\d+|ep\d+|ss\d+|md\d+)$`)
	videoPathRE = regexp.MustCompile(`(?i)/video/(BV[0-9A-Za-z]{10}|av\d+)`)
	playPathRE  = regexp.MustCompile(`(?i)/bangumi/play/((?:ep|ss)\d+)`)
	mediaPathRE = regexp.MustCompile(`(?i)/bangumi/media/(md\d+)`)
)

const (
	defaultSeasonTTL = 10 * time.Minute
	// sharedFetchTimeout bounds a season lookup that outlives its first caller.
	sharedFetchTimeout = 30 * time.Second
)

// ParseReference classifies raw input: a bare code or a platform URL.
func ParseReference(raw string) (media.Reference, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, media.Errorf(media.ErrInvalidReference, "parse reference", "empty input")
	}
	if bareCodeRE.MatchString(raw) {
		return refFromCode(normalizeCode(raw), 0), nil
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, media.Errorf(media.ErrInvalidReference, "parse reference", "unrecognized input %q", raw)
	}

	if m := videoPathRE.FindStringSubmatch(u.Path); m != nil {
		page := 0
		if p, err := strconv.Atoi(u.Query().Get("p")); err == nil && p > 0 {
			page = p
		}
		return refFromCode(normalizeCode(m[1]), page), nil
	}
	if m := playPathRE.FindStringSubmatch(u.Path); m != nil {
		return refFromCode(normalizeCode(m[1]), 0), nil
	}
	if m := mediaPathRE.FindStringSubmatch(u.Path); m != nil {
		return refFromCode(normalizeCode(m[1]), 0), nil
	}
	return nil, media.Errorf(media.ErrInvalidReference, "parse reference", "unsupported url path %q", u.Path)
}

// normalizeCode lower-cases numeric prefixes and upper-cases the BV prefix.
// The BV body is case-sensitive and kept as given.
func normalizeCode(code string) string {
	if len(code) >= 2 && strings.EqualFold(code[:2], "bv") {
		return "BV" + code[2:]
	}
	return strings.ToLower(code)
}

func refFromCode(code string, page int) media.Reference {
	switch {
	case strings.HasPrefix(code, "BV"), strings.HasPrefix(code, "av"):
		return media.VideoRef{Code: code, Page: page}
	default:
		return media.SeriesRef{Code: code}
	}
}

// Resolve parses raw and resolves it into a playback target. index is the
// 1-based page or episode position; 0 leaves the choice to the reference
// (URL page parameter) or, for series, returns the pending sentinel form.
func (c *Client) Resolve(ctx context.Context, raw string, index int) (media.Target, error) {
	ref, err := ParseReference(raw)
	if err != nil {
		return nil, err
	}
	return c.ResolveReference(ctx, ref, index)
}

// ResolveReference resolves an already parsed reference.
func (c *Client) ResolveReference(ctx context.Context, ref media.Reference, index int) (media.Target, error) {
	switch r := ref.(type) {
	case media.VideoRef:
		page := r.Page
		if page == 0 {
			page = index
		}
		return c.resolveVideo(ctx, r.Code, page)
	case media.SeriesRef:
		if index == 0 {
			index = r.Episode
		}
		return c.resolveSeries(ctx, r.Code, index)
	default:
		return nil, media.Errorf(media.ErrInvalidReference, "resolve", "unknown reference type %T", ref)
	}
}

type wireView struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		AID   int64  `json:"aid"`
		BVID  string `json:"bvid"`
		CID   int64  `json:"cid"`
		Title string `json:"title"`
		Pages []struct {
			CID      int64  `json:"cid"`
			Part     string `json:"part"`
			Duration int64  `json:"duration"`
		} `json:"pages"`
	} `json:"data"`
}

func (c *Client) resolveVideo(ctx context.Context, code string, page int) (media.VideoTarget, error) {
	q := url.Values{}
	if strings.HasPrefix(code, "av") {
		q.Set("aid", strings.TrimPrefix(code, "av"))
	} else {
		q.Set("bvid", code)
	}

	var view wireView
	if err := c.getJSON(ctx, "view", plainURL(c.opts.APIBase, "/x/web-interface/view", q), &view); err != nil {
		return media.VideoTarget{}, err
	}
	if view.Code != 0 {
		return media.VideoTarget{}, &media.Error{Kind: media.ErrUpstreamProtocol, Op: "view", Code: view.Code, Detail: view.Message}
	}

	d := view.Data
	target := media.VideoTarget{AID: d.AID, CID: d.CID, BVID: d.BVID, Title: d.Title}
	if len(d.Pages) > 0 {
		if page == 0 {
			page = 1
		}
		if page < 1 || page > len(d.Pages) {
			return media.VideoTarget{}, media.Errorf(media.ErrNotFound, "view", "page %d of %s (has %d)", page, code, len(d.Pages))
		}
		p := d.Pages[page-1]
		target.CID = p.CID
		if len(d.Pages) > 1 && p.Part != "" {
			target.Title = d.Title + " - " + p.Part
		}
	} else if page > 1 {
		return media.VideoTarget{}, media.Errorf(media.ErrNotFound, "view", "page %d of %s (single part)", page, code)
	}

	if target.AID == 0 || target.CID == 0 {
		return media.VideoTarget{}, media.Errorf(media.ErrUpstreamSchema, "view", "missing aid or cid for %s", code)
	}
	return target, nil
}

// Season is the normalized season metadata.
type Season struct {
	ID int64 `json:"id"`
	// Title is the series title, SeasonTitle the name of this season within it.
	Title       string          `json:"title"`
	SeasonTitle string          `json:"season_title"`
	Evaluate    string          `json:"evaluate,omitempty"`
	Cover       string          `json:"cover,omitempty"`
	PubTime     string          `json:"pub_time,omitempty"`
	Finished    bool            `json:"finished"`
	TypeName    string          `json:"type_name,omitempty"`
	Episodes    []media.Episode `json:"episodes"`
}

type wireSeason struct {
	SeasonID       int64  `json:"season_id"`
	SeasonTitle    string `json:"season_title"`
	Title          string `json:"title"`
	Evaluate       string `json:"evaluate"`
	Cover          string `json:"cover"`
	SeasonTypeName string `json:"season_type_name"`
	Publish        struct {
		PubTime  string `json:"pub_time"`
		IsFinish int    `json:"is_finish"`
	} `json:"publish"`
	Episodes []struct {
		ID        int64  `json:"id"`
		EpID      int64  `json:"ep_id"`
		AID       int64  `json:"aid"`
		CID       int64  `json:"cid"`
		BVID      string `json:"bvid"`
		Title     string `json:"title"`
		LongTitle string `json:"long_title"`
		ShareURL  string `json:"share_url"`
	} `json:"episodes"`
}

func (w wireSeason) normalize() Season {
	s := Season{
		ID:          w.SeasonID,
		Title:       w.Title,
		SeasonTitle: w.SeasonTitle,
		Evaluate:    w.Evaluate,
		Cover:       w.Cover,
		PubTime:     w.Publish.PubTime,
		Finished:    w.Publish.IsFinish == 1,
		TypeName:    w.SeasonTypeName,
		Episodes:    make([]media.Episode, 0, len(w.Episodes)),
	}
	if s.Title == "" {
		s.Title = w.SeasonTitle
	}
	if s.SeasonTitle == "" {
		s.SeasonTitle = s.Title
	}
	for _, e := range w.Episodes {
		s.Episodes = append(s.Episodes, media.Episode{
			ID:        e.ID,
			EpisodeID: e.EpID,
			AID:       e.AID,
			CID:       e.CID,
			BVID:      e.BVID,
			Title:     e.Title,
			LongTitle: e.LongTitle,
			ShareURL:  e.ShareURL,
		})
	}
	return s
}

func seasonCacheKey(id int64) string {
	return "season:" + strconv.FormatInt(id, 10)
}

func (c *Client) seasonTTL() time.Duration {
	if c.opts.SeasonTTL > 0 {
		return c.opts.SeasonTTL
	}
	return defaultSeasonTTL
}

// Season returns the season with the given id. Concurrent lookups for the
// same id share one upstream request; results are cached. The shared request
// is detached from any single caller, so one caller giving up does not fail
// the others.
func (c *Client) Season(ctx context.Context, seasonID int64) (Season, error) {
	key := seasonCacheKey(seasonID)
	if raw, ok := c.cache.Get(ctx, key); ok {
		var s Season
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, nil
		}
		c.cache.Delete(ctx, key)
	}

	ch := c.seasons.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()
		return c.fetchSeason(fetchCtx, url.Values{"season_id": {strconv.FormatInt(seasonID, 10)}})
	})
	select {
	case <-ctx.Done():
		return Season{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Season{}, res.Err
		}
		return res.Val.(Season), nil
	}
}

// fetchSeason queries the season endpoint and caches the result by season id.
func (c *Client) fetchSeason(ctx context.Context, q url.Values) (Season, error) {
	var env envelope
	if err := c.getJSON(ctx, "season", plainURL(c.opts.APIBase, "/pgc/view/web/season", q), &env); err != nil {
		return Season{}, err
	}
	if err := env.check("season"); err != nil {
		return Season{}, err
	}
	payload := env.payload()
	if payload == nil {
		return Season{}, media.Errorf(media.ErrUpstreamSchema, "season", "no result payload")
	}
	var w wireSeason
	if err := json.Unmarshal(payload, &w); err != nil {
		return Season{}, &media.Error{Kind: media.ErrUpstreamSchema, Op: "season", Err: err}
	}
	if w.SeasonID == 0 {
		return Season{}, media.Errorf(media.ErrUpstreamSchema, "season", "missing season_id")
	}

	s := w.normalize()
	if raw, err := json.Marshal(s); err == nil {
		c.cache.Set(ctx, seasonCacheKey(s.ID), raw, c.seasonTTL())
	}
	return s, nil
}

// mediaToSeason resolves an md id to its season id.
func (c *Client) mediaToSeason(ctx context.Context, mediaID string) (int64, error) {
	var env envelope
	q := url.Values{"media_id": {mediaID}}
	if err := c.getJSON(ctx, "media", plainURL(c.opts.APIBase, "/pgc/review/user", q), &env); err != nil {
		return 0, err
	}
	if err := env.check("media"); err != nil {
		return 0, err
	}
	var payload struct {
		Media struct {
			SeasonID int64 `json:"season_id"`
		} `json:"media"`
	}
	if raw := env.payload(); raw != nil {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return 0, &media.Error{Kind: media.ErrUpstreamSchema, Op: "media", Err: err}
		}
	}
	if payload.Media.SeasonID == 0 {
		return 0, media.Errorf(media.ErrUpstreamSchema, "media", "md%s carries no season_id", mediaID)
	}
	return payload.Media.SeasonID, nil
}

func (c *Client) resolveSeries(ctx context.Context, code string, index int) (media.EpisodeTarget, error) {
	prefix, digits := code[:2], code[2:]
	num, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || num <= 0 {
		return media.EpisodeTarget{}, media.Errorf(media.ErrInvalidReference, "resolve", "bad series code %q", code)
	}

	var (
		season Season
		wantEp int64
	)
	switch prefix {
	case "ep":
		wantEp = num
		season, err = c.fetchSeason(ctx, url.Values{"ep_id": {digits}})
	case "ss":
		season, err = c.Season(ctx, num)
	case "md":
		var sid int64
		if sid, err = c.mediaToSeason(ctx, digits); err == nil {
			season, err = c.Season(ctx, sid)
		}
	default:
		err = media.Errorf(media.ErrInvalidReference, "resolve", "unknown series prefix %q", prefix)
	}
	if err != nil {
		return media.EpisodeTarget{}, err
	}

	target := media.EpisodeTarget{
		SeasonID:    season.ID,
		SeasonTitle: season.SeasonTitle,
		Synopsis:    season.Evaluate,
		Episodes:    season.Episodes,
	}

	pos := -1
	switch {
	case wantEp != 0:
		for i, e := range season.Episodes {
			if e.EpisodeID == wantEp || e.ID == wantEp {
				pos = i
				break
			}
		}
		if pos < 0 {
			return media.EpisodeTarget{}, media.Errorf(media.ErrNotFound, "resolve", "episode %d not in season %d", wantEp, season.ID)
		}
	case index > 0:
		if index > len(season.Episodes) {
			return media.EpisodeTarget{}, media.Errorf(media.ErrNotFound, "resolve", "episode %d of season %d (has %d)", index, season.ID, len(season.Episodes))
		}
		pos = index - 1
	default:
		log.FromContext(ctx).Debug().
			Int64(log.FieldSeasonID, season.ID).
			Int("episodes", len(season.Episodes)).
			Msg("series resolved without episode choice")
		return target, nil
	}

	return fillEpisode(target, pos)
}

func fillEpisode(target media.EpisodeTarget, pos int) (media.EpisodeTarget, error) {
	e := target.Episodes[pos]
	if e.PublicID() == 0 || e.AID == 0 || e.CID == 0 {
		return media.EpisodeTarget{}, media.Errorf(media.ErrUpstreamSchema, "resolve",
			"episode %d of season %d lacks ep_id, aid or cid", pos+1, target.SeasonID)
	}
	target.EpisodeID = e.PublicID()
	target.AID = e.AID
	target.CID = e.CID
	target.Title = e.Display(target.SeasonTitle)
	return target, nil
}

// Episode resolves the 1-based sort position of a season.
func (c *Client) Episode(ctx context.Context, seasonID int64, sort int) (media.EpisodeTarget, error) {
	if sort < 1 {
		return media.EpisodeTarget{}, media.Errorf(media.ErrNotFound, "episode", "invalid sort %d", sort)
	}
	season, err := c.Season(ctx, seasonID)
	if err != nil {
		return media.EpisodeTarget{}, err
	}
	if sort > len(season.Episodes) {
		return media.EpisodeTarget{}, media.Errorf(media.ErrNotFound, "episode", "sort %d of season %d (has %d)", sort, seasonID, len(season.Episodes))
	}
	return fillEpisode(media.EpisodeTarget{
		SeasonID:    season.ID,
		SeasonTitle: season.SeasonTitle,
		Synopsis:    season.Evaluate,
		Episodes:    season.Episodes,
	}, sort-1)
}
