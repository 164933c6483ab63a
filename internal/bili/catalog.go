// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bili

import (
	"context"
	"encoding/json"
	"html"
	"regexp"
	"sync"

	"github.com/ManuGH/bilihls/internal/bili/wbi"
	"github.com/ManuGH/bilihls/internal/log"
	"github.com/ManuGH/bilihls/internal/media"
	"golang.org/x/sync/errgroup"
)

const (
	searchType       = "media_bangumi"
	maxSearchPages   = 100
	defaultEnrichers = 5
)

var emTagRE = regexp.MustCompile(`</?em[^>]*>`)

// SearchItem is one catalog search hit.
type SearchItem struct {
	Title    string `json:"title"`
	MediaID  int64  `json:"media_id"`
	SeasonID int64  `json:"season_id"`
	Episodes int64  `json:"eps"`
	Cover    string `json:"cover,omitempty"`
	Desc     string `json:"desc,omitempty"`
	Finished *bool  `json:"finished,omitempty"`
	TypeName string `json:"type_name,omitempty"`
	PubTime  string `json:"pub_time,omitempty"`
}

// Search pages through the series search until a page adds nothing new.
// Results are deduplicated by season id.
func (c *Client) Search(ctx context.Context, keyword string) ([]SearchItem, error) {
	if keyword == "" {
		return nil, media.Errorf(media.ErrInvalidReference, "search", "empty keyword")
	}

	logger := log.FromContext(ctx)
	seen := make(map[int64]struct{})
	var out []SearchItem

	for page := 1; page <= maxSearchPages; page++ {
		rawURL, err := c.signedURL(ctx, "/x/web-interface/wbi/search/type", []wbi.Param{
			wbi.P("keyword", keyword),
			wbi.P("search_type", searchType),
			wbi.PInt("page", int64(page)),
		})
		if err != nil {
			return nil, err
		}

		var resp struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Data    struct {
				Result json.RawMessage `json:"result"`
			} `json:"data"`
		}
		if err := c.getJSON(ctx, "search", rawURL, &resp); err != nil {
			return nil, err
		}
		if resp.Code != 0 {
			return nil, &media.Error{Kind: media.ErrUpstreamProtocol, Op: "search", Code: resp.Code, Detail: resp.Message}
		}
		if isNull(resp.Data.Result) {
			break
		}

		added := 0
		for _, raw := range searchEntries(resp.Data.Result) {
			item, ok := parseSearchItem(raw)
			if !ok {
				continue
			}
			if item.SeasonID != 0 {
				if _, dup := seen[item.SeasonID]; dup {
					continue
				}
				seen[item.SeasonID] = struct{}{}
			}
			out = append(out, item)
			added++
		}
		logger.Debug().Int("page", page).Int("added", added).Msg("search page")
		if added == 0 {
			break
		}
	}
	return out, nil
}

// searchEntries flattens data.result, which is either an array of hits or an
// object of arrays keyed by result type.
func searchEntries(result json.RawMessage) []map[string]json.RawMessage {
	var list []map[string]json.RawMessage
	if err := json.Unmarshal(result, &list); err == nil {
		return list
	}
	var grouped map[string]json.RawMessage
	if err := json.Unmarshal(result, &grouped); err != nil {
		return nil
	}
	for _, group := range grouped {
		var items []map[string]json.RawMessage
		if err := json.Unmarshal(group, &items); err == nil {
			list = append(list, items...)
		}
	}
	return list
}

func parseSearchItem(m map[string]json.RawMessage) (SearchItem, bool) {
	if m == nil {
		return SearchItem{}, false
	}
	item := SearchItem{
		Title:    html.UnescapeString(emTagRE.ReplaceAllString(firstString(m, "title"), "")),
		MediaID:  firstInt(m, "media_id"),
		SeasonID: firstInt(m, "season_id"),
		Episodes: firstInt(m, "eps"),
		Cover:    firstString(m, "cover", "media_cover", "season_cover"),
		Desc:     html.UnescapeString(firstString(m, "desc", "media_desc", "evaluate")),
		TypeName: firstString(m, "season_type_name", "media_type_name"),
		PubTime:  firstString(m, "pub_time", "pubtime", "publish_time"),
	}
	if b, ok := firstBool(m, "is_finish", "finish"); ok {
		item.Finished = &b
	}
	return item, true
}

func firstString(m map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s
		}
	}
	return ""
}

func firstInt(m map[string]json.RawMessage, keys ...string) int64 {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var n int64
		if json.Unmarshal(raw, &n) == nil {
			return n
		}
	}
	return 0
}

func firstBool(m map[string]json.RawMessage, keys ...string) (bool, bool) {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var b bool
		if json.Unmarshal(raw, &b) == nil {
			return b, true
		}
		var n int64
		if json.Unmarshal(raw, &n) == nil {
			return n == 1, true
		}
	}
	return false, false
}

// Seasons fetches several seasons with at most workers concurrent lookups.
// Failed lookups are logged and left out of the result.
func (c *Client) Seasons(ctx context.Context, ids []int64, workers int) map[int64]Season {
	if workers <= 0 {
		workers = defaultEnrichers
	}
	logger := log.FromContext(ctx)

	var (
		mu  sync.Mutex
		out = make(map[int64]Season, len(ids))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, id := range ids {
		if id == 0 {
			continue
		}
		g.Go(func() error {
			s, err := c.Season(gctx, id)
			if err != nil {
				logger.Warn().Err(err).Int64(log.FieldSeasonID, id).Msg("season detail lookup failed")
				return nil
			}
			mu.Lock()
			out[id] = s
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
