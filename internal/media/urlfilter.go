// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package media

import (
	"net/url"
	"strings"
)

// PathClass is the delivery path a stream URL points at.
type PathClass int

const (
	PathOther PathClass = iota
	PathMirror
	PathDirect
	PathEdgeCache
)

func (c PathClass) String() string {
	switch c {
	case PathMirror:
		return "mirror"
	case PathDirect:
		return "upos"
	case PathEdgeCache:
		return "bcache"
	default:
		return "other"
	}
}

// MirrorHosts replace the host of direct and edge-cache URLs, by position.
var MirrorHosts = []string{
	"upos-sz-mirrorali.bilivideo.com",
	"upos-sz-mirrorcos.bilivideo.com",
}

// Classify assigns u to a delivery path using its host and "os" query parameter.
func Classify(u *url.URL) PathClass {
	host := u.Hostname()
	osParam := u.Query().Get("os")
	switch {
	case strings.Contains(host, "mirror") && strings.HasSuffix(osParam, "bv"):
		return PathMirror
	case osParam == "upos":
		return PathDirect
	case strings.HasPrefix(host, "cn") && osParam == "bcache":
		return PathEdgeCache
	default:
		return PathOther
	}
}

// Prioritize reorders candidate stream URLs so that mirror hosts are tried
// first. Direct and edge-cache URLs are rewritten onto the mirror hosts.
// URLs that do not parse are dropped.
func Prioritize(urls []string) []string {
	var mirror, direct, edge, other []candidate
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			continue
		}
		c := candidate{raw: raw, u: u}
		switch Classify(u) {
		case PathMirror:
			mirror = append(mirror, c)
		case PathDirect:
			direct = append(direct, c)
		case PathEdgeCache:
			edge = append(edge, c)
		default:
			other = append(other, c)
		}
	}

	if len(mirror) > 0 {
		if len(mirror) < 2 {
			return raws(append(mirror, direct...))
		}
		return raws(mirror)
	}

	if len(direct) > 0 || len(edge) > 0 {
		src := direct
		if len(src) == 0 {
			src = edge
		}
		out := make([]string, 0, len(src))
		for i, c := range src {
			if i >= len(MirrorHosts) {
				out = append(out, c.raw)
				continue
			}
			cp := *c.u
			cp.Host = MirrorHosts[i]
			if port := c.u.Port(); port != "" {
				cp.Host += ":" + port
			}
			out = append(out, cp.String())
		}
		return out
	}

	return raws(other)
}

type candidate struct {
	raw string
	u   *url.URL
}

func raws(cs []candidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.raw)
	}
	return out
}
