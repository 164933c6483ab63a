// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bili

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ManuGH/bilihls/internal/cache"
	"github.com/rs/zerolog"
)

const navBody = `{"code":-101,"message":"not logged in","data":{"isLogin":false,"wbi_img":{
	"img_url":"https://i0.hdslb.com/bfs/wbi/7cd084941338484aae1ad9425b84077c.png",
	"sub_url":"https://i0.hdslb.com/bfs/wbi/4932caff0ff746eab6f01bf08b70ac45.png"}}}`

type upstream struct {
	*httptest.Server
	mux  *http.ServeMux
	hits map[string]*atomic.Int64
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{mux: http.NewServeMux(), hits: map[string]*atomic.Int64{}}
	u.handle("/x/web-interface/nav", navBody)
	u.Server = httptest.NewServer(u.mux)
	t.Cleanup(u.Close)
	return u
}

// handle registers a fixed JSON body for path.
func (u *upstream) handle(path, body string) {
	u.handleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})
}

func (u *upstream) handleFunc(path string, fn http.HandlerFunc) {
	n := &atomic.Int64{}
	u.hits[path] = n
	u.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		n.Add(1)
		fn(w, r)
	})
}

func (u *upstream) count(path string) int64 {
	if n, ok := u.hits[path]; ok {
		return n.Load()
	}
	return 0
}

func (u *upstream) client(t *testing.T, c cache.Cache, mutate ...func(*Options)) *Client {
	t.Helper()
	opts := Options{APIBase: u.URL, PassportBase: u.URL, UserAgent: "bilihls-test"}
	for _, m := range mutate {
		m(&opts)
	}
	return NewClient(u.Server.Client(), c, opts, zerolog.Nop())
}
