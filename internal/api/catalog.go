// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/bilihls/internal/log"
	"github.com/ManuGH/bilihls/internal/platform/httpx"
)

const (
	statusFinished = "完结"
	statusOngoing  = "连载"
	defaultType    = "TV"
)

// SearchItem is one entry of the /search response.
type SearchItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Cover       string `json:"cover"`
	Description string `json:"description"`
	Year        string `json:"year"`
	Status      string `json:"status"`
	Type        string `json:"type"`
	URL         string `json:"url"`
}

// Source is one playable episode of a detail response.
type Source struct {
	Name string `json:"name"`
	Sort int    `json:"sort"`
	M3U8 string `json:"m3u8"`
}

// Detail is the /detail/{id} payload.
type Detail struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Cover       string   `json:"cover"`
	Description string   `json:"description"`
	Year        string   `json:"year"`
	Status      string   `json:"status"`
	Type        string   `json:"type"`
	Sources     []Source `json:"sources"`
}

// emptyObject renders as {} in failed detail envelopes.
type emptyObject struct{}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	keyword := strings.TrimSpace(r.URL.Query().Get("q"))
	if keyword == "" {
		writeFailure(w, http.StatusBadRequest, codeBadRequest, "缺少 q 参数", []SearchItem{})
		return
	}
	htmlMode := strings.EqualFold(r.URL.Query().Get("f"), "html")

	hits, err := s.catalog.Search(r.Context(), keyword)
	if err != nil {
		s.failCatalog(w, r, err, "search", []SearchItem{})
		return
	}

	ids := make([]int64, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.SeasonID)
	}
	seasons := s.catalog.Seasons(r.Context(), ids, s.opts.SearchWorkers)

	base := s.publicBase(r)
	items := make([]SearchItem, 0, len(hits))
	for _, h := range hits {
		item := SearchItem{
			ID:    strconv.FormatInt(h.SeasonID, 10),
			Title: h.Title,
			Type:  defaultType,
		}
		if season, ok := seasons[h.SeasonID]; ok {
			item.Cover = season.Cover
			item.Description = season.Evaluate
			item.Year = year(season.PubTime)
			item.Status = seasonStatus(season.Finished)
			item.Type = typeName(season.TypeName)
		}
		if htmlMode {
			item.URL = fmt.Sprintf("%s/html/%d", base, h.SeasonID)
		} else {
			item.URL = fmt.Sprintf("%s/detail/%d", base, h.SeasonID)
		}
		items = append(items, item)
	}
	writeOK(w, items)
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeFailure(w, http.StatusBadRequest, codeBadRequest, "id 参数应为数字", emptyObject{})
		return
	}
	detail, err := s.detail(r, id)
	if err != nil {
		s.failCatalog(w, r, err, "detail", emptyObject{})
		return
	}
	writeOK(w, detail)
}

var episodePage = template.Must(template.New("episodes").Parse(`<!DOCTYPE html>
<html lang="zh-CN">
<head>
  <meta charset="utf-8" />
  <title>{{.Title}}</title>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="channel-tabs">
    <a>星源通道</a>
  </div>
  <div class="episode-panels">
    <div class="panel">
{{- range .Sources}}
      <a href="{{.M3U8}}">{{.Name}}</a>
{{- end}}
    </div>
  </div>
</body>
</html>
`))

func (s *Server) handleHTML(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		w.Header().Set(httpx.HeaderContentType, httpx.ContentTypeText)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("id 参数应为数字"))
		return
	}
	detail, err := s.detail(r, id)
	if err != nil {
		status, _, msg := classify(err)
		logger := log.WithContext(r.Context(), s.logger)
		logger.Error().Err(err).Int64(log.FieldSeasonID, id).Msg("episode page failed")
		w.Header().Set(httpx.HeaderContentType, httpx.ContentTypeText)
		w.WriteHeader(status)
		_, _ = w.Write([]byte("获取剧集失败: " + msg))
		return
	}
	w.Header().Set(httpx.HeaderContentType, httpx.ContentTypeHTML)
	if err := episodePage.Execute(w, detail); err != nil {
		logger := log.WithContext(r.Context(), s.logger)
		logger.Warn().Err(err).Msg("render episode page")
	}
}

// detail loads a season and lists one HLS source per episode, numbered
// from 1 in upstream order.
func (s *Server) detail(r *http.Request, id int64) (Detail, error) {
	season, err := s.catalog.Season(r.Context(), id)
	if err != nil {
		return Detail{}, err
	}
	base := s.publicBase(r)
	d := Detail{
		ID:          strconv.FormatInt(id, 10),
		Title:       season.Title,
		Cover:       season.Cover,
		Description: season.Evaluate,
		Year:        year(season.PubTime),
		Status:      seasonStatus(season.Finished),
		Type:        typeName(season.TypeName),
		Sources:     make([]Source, 0, len(season.Episodes)),
	}
	for i, ep := range season.Episodes {
		sort := i + 1
		d.Sources = append(d.Sources, Source{
			Name: episodeName(sort, ep.Title, ep.LongTitle),
			Sort: sort,
			M3U8: fmt.Sprintf("%s/hls/%d/%d/index.m3u8", base, id, sort),
		})
	}
	return d, nil
}

func (s *Server) failCatalog(w http.ResponseWriter, r *http.Request, err error, op string, empty any) {
	status, code, msg := classify(err)
	logger := log.WithContext(r.Context(), s.logger)
	logger.Error().Err(err).
		Str(log.FieldEvent, "catalog."+op+"_failed").
		Int("status", status).
		Msg("catalog request failed")
	writeFailure(w, status, code, msg, empty)
}

// publicBase is the configured absolute base, or one derived from the request.
func (s *Server) publicBase(r *http.Request) string {
	base := strings.TrimRight(s.opts.PublicBase, "/")
	if strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://") {
		return base
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host + base
}

func episodeName(sort int, title, longTitle string) string {
	num := title
	if num == "" {
		num = strconv.Itoa(sort)
	}
	if longTitle == "" {
		return "第" + num + "集"
	}
	return "第" + num + "集 " + longTitle
}

func year(pubTime string) string {
	if len(pubTime) < 4 {
		return ""
	}
	return pubTime[:4]
}

func seasonStatus(finished bool) string {
	if finished {
		return statusFinished
	}
	return statusOngoing
}

func typeName(name string) string {
	if name == "" {
		return defaultType
	}
	return name
}

// descriptor is the service description served at "/".
type descriptor struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

func (s *Server) handleDescriptor(w http.ResponseWriter, r *http.Request) {
	base := s.publicBase(r)
	writeJSON(w, http.StatusOK, descriptor{
		Name:    "bilihls",
		Version: s.opts.Version,
		Endpoints: map[string]string{
			"search":   base + "/search?q={keyword}",
			"detail":   base + "/detail/{id}",
			"html":     base + "/html/{id}",
			"playlist": base + "/hls/{season_id}/{sort}/index.m3u8",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
