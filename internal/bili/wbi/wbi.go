// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package wbi implements the query signing scheme required by the
// platform's "wbi" endpoints.
package wbi

import (
	"context"
	"crypto/md5" // #nosec G501 -- md5 is mandated by the upstream signing scheme
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var mixinKeyEncTab = [64]int{
	46, 47, 18, 2, 53, 8, 23, 32, 15, 50, 10, 31, 58, 3, 45, 35,
	27, 43, 5, 49, 33, 9, 42, 19, 29, 28, 14, 39, 12, 38, 41, 13,
	37, 48, 7, 16, 24, 55, 40, 61, 26, 17, 0, 1, 60, 51, 30, 4,
	22, 25, 54, 21, 56, 59, 6, 63, 57, 62, 11, 36, 20, 34, 44, 52,
}

// Param is one query parameter. Order does not matter, Sign sorts by key.
type Param struct {
	Key   string
	Value string
}

// P builds a string Param.
func P(key, value string) Param {
	return Param{Key: key, Value: value}
}

// PInt builds an integer Param.
func PInt(key string, value int64) Param {
	return Param{Key: key, Value: strconv.FormatInt(value, 10)}
}

// KeySource fetches the image and sub key URLs the mixin key derives from.
type KeySource interface {
	WBIKeys(ctx context.Context) (imgURL, subURL string, err error)
}

// Signer signs parameter sets with keys obtained from a KeySource.
type Signer struct {
	keys KeySource
	now  func() time.Time
}

// NewSigner returns a signer using src for key fragments.
func NewSigner(src KeySource) *Signer {
	return &Signer{keys: src, now: time.Now}
}

// Sign fetches the current key fragments and returns the signed query string.
func (s *Signer) Sign(ctx context.Context, params []Param) (string, error) {
	img, sub, err := s.keys.WBIKeys(ctx)
	if err != nil {
		return "", err
	}
	return Encode(params, MixinKey(KeyFragment(img), KeyFragment(sub)), s.now().Unix()), nil
}

// KeyFragment extracts the file stem of a key URL: the text between the
// last '/' and the last '.'.
func KeyFragment(u string) string {
	start := strings.LastIndexByte(u, '/') + 1
	end := strings.LastIndexByte(u, '.')
	if end < start {
		end = len(u)
	}
	return u[start:end]
}

// MixinKey permutes img+sub through the fixed table and keeps 32 characters.
func MixinKey(img, sub string) string {
	combined := []rune(img + sub)
	var b strings.Builder
	b.Grow(32)
	for _, idx := range mixinKeyEncTab {
		if idx < len(combined) {
			b.WriteRune(combined[idx])
		}
	}
	out := []rune(b.String())
	if len(out) > 32 {
		out = out[:32]
	}
	return string(out)
}

// Encode produces the signed query for params at unix time ts. The input is
// not modified.
func Encode(params []Param, mixin string, ts int64) string {
	all := make([]Param, 0, len(params)+1)
	all = append(all, params...)
	all = append(all, Param{Key: "wts", Value: strconv.FormatInt(ts, 10)})
	sort.SliceStable(all, func(i, j int) bool { return all[i].Key < all[j].Key })

	parts := make([]string, 0, len(all))
	for _, p := range all {
		parts = append(parts, escape(p.Key)+"="+escape(stripReserved(p.Value)))
	}
	query := strings.Join(parts, "&")

	sum := md5.Sum([]byte(query + mixin)) // #nosec G401
	return query + "&w_rid=" + hex.EncodeToString(sum[:])
}

func stripReserved(v string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '!', '\'', '(', ')', '*':
			return -1
		}
		return r
	}, v)
}

// escape percent-encodes everything outside the RFC 3986 unreserved set.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
