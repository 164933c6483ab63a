// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package wbi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testImg   = "https://i0.hdslb.com/bfs/wbi/7cd084941338484aae1ad9425b84077c.png"
	testSub   = "https://i0.hdslb.com/bfs/wbi/4932caff0ff746eab6f01bf08b70ac45.png"
	testMixin = "ea1db124af3c7062474693fa704f4ff8"
)

type staticKeys struct {
	img, sub string
	err      error
	calls    int
}

func (s *staticKeys) WBIKeys(context.Context) (string, string, error) {
	s.calls++
	return s.img, s.sub, s.err
}

func TestKeyFragment(t *testing.T) {
	assert.Equal(t, "7cd084941338484aae1ad9425b84077c", KeyFragment(testImg))
	assert.Equal(t, "abc", KeyFragment("abc"))
	assert.Equal(t, "abc", KeyFragment("/x/abc"))
}

func TestMixinKey(t *testing.T) {
	got := MixinKey(KeyFragment(testImg), KeyFragment(testSub))
	assert.Equal(t, testMixin, got)
	assert.Len(t, got, 32)
}

func TestEncodeKnownVector(t *testing.T) {
	params := []Param{P("foo", "114"), P("bar", "514"), PInt("zab", 1919810)}
	got := Encode(params, testMixin, 1702204169)
	assert.Equal(t, "bar=514&foo=114&wts=1702204169&zab=1919810&w_rid=8f6f2b5b3d485fe1886cec6a0be8c5d4", got)
	// caller slice stays untouched
	assert.Equal(t, "foo", params[0].Key)
	assert.Len(t, params, 3)
}

func TestEncodeStripsReservedAndEscapes(t *testing.T) {
	got := Encode([]Param{
		P("search_type", "media_bangumi"),
		P("page", "1"),
		P("keyword", "a b!(c)*'"),
	}, testMixin, 1700000000)
	assert.Equal(t, "keyword=a%20bc&page=1&search_type=media_bangumi&wts=1700000000&w_rid=dffacd468ee8c764b4f11eb993f24fe7", got)

	got = Encode([]Param{
		P("keyword", "你好 世界"),
		P("page", "2"),
		P("search_type", "media_bangumi"),
	}, testMixin, 1700000000)
	assert.Equal(t, "keyword=%E4%BD%A0%E5%A5%BD%20%E4%B8%96%E7%95%8C&page=2&search_type=media_bangumi&wts=1700000000&w_rid=c79f5a2a29e737819febd529b643f0ad", got)
}

func TestEncodeOrderIndependent(t *testing.T) {
	a := Encode([]Param{P("b", "2"), P("a", "1"), P("c", "3")}, testMixin, 42)
	b := Encode([]Param{P("c", "3"), P("b", "2"), P("a", "1")}, testMixin, 42)
	assert.Equal(t, a, b)
}

func TestSignerUsesClockAndKeys(t *testing.T) {
	src := &staticKeys{img: testImg, sub: testSub}
	s := NewSigner(src)
	s.now = func() time.Time { return time.Unix(1702204169, 0) }

	got, err := s.Sign(context.Background(), []Param{P("foo", "114"), P("bar", "514"), P("zab", "1919810")})
	require.NoError(t, err)
	assert.Equal(t, "bar=514&foo=114&wts=1702204169&zab=1919810&w_rid=8f6f2b5b3d485fe1886cec6a0be8c5d4", got)
	assert.Equal(t, 1, src.calls)
}

func TestSignerPropagatesKeyErrors(t *testing.T) {
	boom := errors.New("nav unavailable")
	_, err := NewSigner(&staticKeys{err: boom}).Sign(context.Background(), nil)
	require.ErrorIs(t, err, boom)
}
