// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// PlatformDomains are the cookie domains forwarded to media requests.
var PlatformDomains = []string{"bilibili.com", "bilivideo.com"}

func bareDomain(d string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "."))
}

func domainMatches(cookieDomain string, domains []string) bool {
	cd := bareDomain(cookieDomain)
	for _, d := range domains {
		d = bareDomain(d)
		if cd == d || strings.HasSuffix(cd, "."+d) {
			return true
		}
	}
	return false
}

// CookieHeader renders a Cookie header value from the live cookies of st
// that belong to domains. Names are deduplicated, first occurrence wins.
func (st State) CookieHeader(domains ...string) string {
	if len(domains) == 0 {
		domains = PlatformDomains
	}
	now := time.Now()
	seen := make(map[string]struct{}, len(st.Cookies))
	var parts []string
	for _, c := range st.Cookies {
		if c.Name == "" || c.Expired(now) || !domainMatches(c.Domain, domains) {
			continue
		}
		if _, dup := seen[c.Name]; dup {
			continue
		}
		seen[c.Name] = struct{}{}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// Jar builds a cookie jar preloaded with the live cookies of st.
func (st State) Jar() (*cookiejar.Jar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	now := time.Now()
	byHost := make(map[string][]*http.Cookie)
	for _, c := range st.Cookies {
		host := bareDomain(c.Domain)
		if host == "" || c.Expired(now) {
			continue
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		byHost[host] = append(byHost[host], &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   host,
			Path:     path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		})
	}
	for host, cookies := range byHost {
		jar.SetCookies(&url.URL{Scheme: "https", Host: host, Path: "/"}, cookies)
	}
	return jar, nil
}

// FromJar snapshots the cookies jar would send to each of urls. The jar
// does not expose domains, so each cookie is scoped to the registrable
// domain of the URL it was read from.
func FromJar(jar http.CookieJar, urls ...*url.URL) State {
	var st State
	seen := make(map[string]struct{})
	for _, u := range urls {
		domain, err := publicsuffix.EffectiveTLDPlusOne(u.Hostname())
		if err != nil {
			domain = u.Hostname()
		}
		for _, c := range jar.Cookies(u) {
			key := domain + "\x00" + c.Name
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			st.Cookies = append(st.Cookies, Cookie{
				Name:   c.Name,
				Value:  c.Value,
				Domain: "." + domain,
				Path:   "/",
			})
		}
	}
	return st
}

// ParseNetscape parses a Netscape cookies.txt file:
// domain, include-subdomains flag, path, secure, expiry, name, value.
func ParseNetscape(r io.Reader) ([]Cookie, error) {
	var cookies []Cookie
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		httpOnly := false
		if rest, ok := strings.CutPrefix(line, "#HttpOnly_"); ok {
			line = rest
			httpOnly = true
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, "\t")
		if len(parts) < 7 {
			continue
		}
		var expires time.Time
		if unix, err := strconv.ParseInt(parts[4], 10, 64); err == nil && unix > 0 {
			expires = time.Unix(unix, 0)
		}
		cookies = append(cookies, Cookie{
			Domain:   parts[0],
			Path:     parts[2],
			Secure:   strings.EqualFold(parts[3], "TRUE"),
			Expires:  expires,
			Name:     parts[5],
			Value:    parts[6],
			HTTPOnly: httpOnly,
		})
	}
	return cookies, scanner.Err()
}
