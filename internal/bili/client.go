// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bili talks to the streaming platform: reference resolution, season
// metadata, stream manifests, catalog search and QR login.
package bili

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuGH/bilihls/internal/bili/wbi"
	"github.com/ManuGH/bilihls/internal/cache"
	"github.com/ManuGH/bilihls/internal/log"
	"github.com/ManuGH/bilihls/internal/media"
	"github.com/ManuGH/bilihls/internal/metrics"
	"github.com/ManuGH/bilihls/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	defaultAPIBase      = "https://api.bilibili.com"
	defaultPassportBase = "https://passport.bilibili.com"
	defaultReferer      = "https://www.bilibili.com"
	defaultRateBurst    = 4
	maxBodyBytes        = 8 << 20
	bodySnippetBytes    = 160
	wbiCacheKey         = "wbi:keys"
)

// Options configures the platform client.
type Options struct {
	APIBase      string
	PassportBase string
	Referer      string
	Origin       string
	UserAgent    string
	// Authenticated selects the logged-in quality parameters for manifests.
	Authenticated     bool
	RequestsPerSecond float64
	// WBIKeyTTL caches signing key fragments; 0 fetches them on every call.
	WBIKeyTTL time.Duration
	SeasonTTL time.Duration
}

func normalizeOptions(opts Options) Options {
	if opts.APIBase == "" {
		opts.APIBase = defaultAPIBase
	}
	if opts.PassportBase == "" {
		opts.PassportBase = defaultPassportBase
	}
	if opts.Referer == "" {
		opts.Referer = defaultReferer
	}
	if opts.Origin == "" {
		opts.Origin = opts.Referer
	}
	opts.APIBase = strings.TrimRight(opts.APIBase, "/")
	opts.PassportBase = strings.TrimRight(opts.PassportBase, "/")
	return opts
}

// Client is the platform API client. It is safe for concurrent use.
type Client struct {
	http    *http.Client
	opts    Options
	limiter *rate.Limiter
	signer  *wbi.Signer
	cache   cache.Cache
	seasons singleflight.Group
	logger  zerolog.Logger
}

// NewClient builds a client. A nil cache disables metadata caching.
func NewClient(httpClient *http.Client, c cache.Cache, opts Options, logger zerolog.Logger) *Client {
	if c == nil {
		c = cache.NoOp{}
	}
	nopts := normalizeOptions(opts)
	limit := rate.Inf
	if nopts.RequestsPerSecond > 0 {
		limit = rate.Limit(nopts.RequestsPerSecond)
	}
	cl := &Client{
		http:    httpClient,
		opts:    nopts,
		limiter: rate.NewLimiter(limit, defaultRateBurst),
		cache:   c,
		logger:  logger,
	}
	cl.signer = wbi.NewSigner(cl)
	return cl
}

// Authenticated reports whether the client was built for a logged-in session.
func (c *Client) Authenticated() bool { return c.opts.Authenticated }

// HTTPClient exposes the underlying client so callers share its cookie jar.
func (c *Client) HTTPClient() *http.Client { return c.http }

// envelope is the common response wrapper. Some endpoints answer under
// "data", others under "result".
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Result  json.RawMessage `json:"result"`
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func (e *envelope) check(op string) error {
	if e.Code != 0 {
		return &media.Error{Kind: media.ErrUpstreamProtocol, Op: op, Code: e.Code, Detail: e.Message}
	}
	return nil
}

// payload returns "result" when present, else "data".
func (e *envelope) payload() json.RawMessage {
	if !isNull(e.Result) {
		return e.Result
	}
	if !isNull(e.Data) {
		return e.Data
	}
	return nil
}

func (c *Client) api(path string) string {
	return c.opts.APIBase + path
}

func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set("Referer", c.opts.Referer)
	req.Header.Set("Origin", c.opts.Origin)
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	req.Header.Set("Accept", "application/json")
}

// getJSON issues a GET against rawURL and decodes the body into out.
// Non-200 statuses become ErrUpstreamProtocol, undecodable bodies ErrUpstreamSchema.
func (c *Client) getJSON(ctx context.Context, endpoint, rawURL string, out any) (err error) {
	start := time.Now()
	ctx, span := telemetry.Tracer("bilihls.upstream").Start(ctx, "upstream."+endpoint,
		trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String(telemetry.EndpointKey, endpoint))
	defer func() {
		metrics.ObserveUpstream(endpoint, start, err)
		if err != nil {
			telemetry.RecordError(span, err, endpoint)
		}
		span.End()
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", endpoint, err)
	}
	c.applyHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &media.Error{
			Kind:   media.ErrUpstreamProtocol,
			Op:     endpoint,
			Code:   resp.StatusCode,
			Detail: snippet(body),
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &media.Error{
			Kind:   media.ErrUpstreamSchema,
			Op:     endpoint,
			Detail: "undecodable body: " + snippet(body),
			Err:    err,
		}
	}
	return nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if r := []rune(s); len(r) > bodySnippetBytes {
		s = string(r[:bodySnippetBytes]) + "..."
	}
	return s
}

type navKeys struct {
	Img string `json:"img"`
	Sub string `json:"sub"`
}

// WBIKeys fetches the signing key URLs from the nav endpoint. The envelope
// code is ignored: anonymous sessions get -101 together with valid keys.
func (c *Client) WBIKeys(ctx context.Context) (string, string, error) {
	if c.opts.WBIKeyTTL > 0 {
		if raw, ok := c.cache.Get(ctx, wbiCacheKey); ok {
			var k navKeys
			if json.Unmarshal(raw, &k) == nil && k.Img != "" && k.Sub != "" {
				return k.Img, k.Sub, nil
			}
		}
	}

	var nav struct {
		Data struct {
			WbiImg struct {
				ImgURL string `json:"img_url"`
				SubURL string `json:"sub_url"`
			} `json:"wbi_img"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, "nav", c.api("/x/web-interface/nav"), &nav); err != nil {
		return "", "", &media.Error{Kind: media.ErrUpstreamProtocol, Op: "wbi keys", Err: err}
	}
	img, sub := nav.Data.WbiImg.ImgURL, nav.Data.WbiImg.SubURL
	if img == "" || sub == "" {
		return "", "", media.Errorf(media.ErrUpstreamProtocol, "wbi keys", "nav response carries no wbi_img")
	}

	c.logger.Debug().Str(log.FieldEndpoint, "nav").Msg("wbi keys fetched")
	if c.opts.WBIKeyTTL > 0 {
		if raw, err := json.Marshal(navKeys{Img: img, Sub: sub}); err == nil {
			c.cache.Set(ctx, wbiCacheKey, raw, c.opts.WBIKeyTTL)
		}
	}
	return img, sub, nil
}

// signedURL signs params and appends them to the API path.
func (c *Client) signedURL(ctx context.Context, path string, params []wbi.Param) (string, error) {
	q, err := c.signer.Sign(ctx, params)
	if err != nil {
		return "", err
	}
	return c.api(path) + "?" + q, nil
}

func plainURL(base, path string, q url.Values) string {
	if len(q) == 0 {
		return base + path
	}
	return base + path + "?" + q.Encode()
}
