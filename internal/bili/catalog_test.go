// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bili

import (
	"context"
	"net/http"
	"testing"

	"github.com/ManuGH/bilihls/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_PagesUntilNoNewItems(t *testing.T) {
	pages := map[string]string{
		"1": `{"code":0,"data":{"result":[
			{"title":"<em class=\"keyword\">Frieren</em> &amp; Friends","media_id":1,"season_id":4321,"eps":28,
			 "cover":"https://c/1.jpg","desc":"a &lt;b&gt;","is_finish":1,"season_type_name":"番剧","pubtime":"2023"},
			{"title":"Other","media_id":2,"season_id":4322,"media_cover":"https://c/2.jpg","finish":false}
		]}}`,
		"2": `{"code":0,"data":{"result":{"media_bangumi":[
			{"title":"Frieren","season_id":4321},
			{"title":"Third","season_id":4323,"evaluate":"third desc","media_type_name":"电影"}
		],"media_ft":[]}}}`,
		"3": `{"code":0,"data":{"result":[{"title":"Frieren","season_id":4321}]}}`,
	}
	up := newUpstream(t)
	up.handleFunc("/x/web-interface/wbi/search/type", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "media_bangumi", q.Get("search_type"))
		assert.Equal(t, "frieren", q.Get("keyword"))
		assert.Regexp(t, wridRE, q.Get("w_rid"))
		_, _ = w.Write([]byte(pages[q.Get("page")]))
	})

	items, err := up.client(t, nil).Search(context.Background(), "frieren")
	require.NoError(t, err)
	assert.Equal(t, int64(3), up.count("/x/web-interface/wbi/search/type"))
	require.Len(t, items, 3)

	first := items[0]
	assert.Equal(t, "Frieren & Friends", first.Title)
	assert.Equal(t, "a <b>", first.Desc)
	assert.Equal(t, int64(28), first.Episodes)
	assert.Equal(t, "2023", first.PubTime)
	require.NotNil(t, first.Finished)
	assert.True(t, *first.Finished)

	assert.Equal(t, "https://c/2.jpg", items[1].Cover)
	require.NotNil(t, items[1].Finished)
	assert.False(t, *items[1].Finished)

	assert.Equal(t, int64(4323), items[2].SeasonID)
	assert.Equal(t, "third desc", items[2].Desc)
	assert.Equal(t, "电影", items[2].TypeName)
}

func TestSearch_StopsOnMissingResult(t *testing.T) {
	up := newUpstream(t)
	up.handle("/x/web-interface/wbi/search/type", `{"code":0,"data":{"numResults":0}}`)
	items, err := up.client(t, nil).Search(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, int64(1), up.count("/x/web-interface/wbi/search/type"))
}

func TestSearch_Errors(t *testing.T) {
	up := newUpstream(t)
	up.handle("/x/web-interface/wbi/search/type", `{"code":-412,"message":"request was banned"}`)
	c := up.client(t, nil)

	_, err := c.Search(context.Background(), "x")
	assert.True(t, media.IsRiskControl(err))

	_, err = c.Search(context.Background(), "")
	assert.ErrorIs(t, err, media.ErrInvalidReference)
}

func TestSeasons_BoundedEnrichment(t *testing.T) {
	up := newUpstream(t)
	up.handleFunc("/pgc/view/web/season", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("season_id") == "4321" {
			_, _ = w.Write([]byte(seasonBody))
			return
		}
		_, _ = w.Write([]byte(`{"code":-404,"message":"missing"}`))
	})

	got := up.client(t, nil).Seasons(context.Background(), []int64{4321, 0, 999}, 2)
	require.Len(t, got, 1)
	assert.Equal(t, "Frieren", got[4321].Title)
	assert.Equal(t, "2023-09-29 23:00:00", got[4321].PubTime)
}
