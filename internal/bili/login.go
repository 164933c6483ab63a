// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bili

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/ManuGH/bilihls/internal/media"
)

// DefaultQRPollInterval is how often the passport endpoint is polled.
const DefaultQRPollInterval = 1500 * time.Millisecond

// ErrQRExpired is returned when the QR code expired before confirmation.
var ErrQRExpired = errors.New("qr code expired")

// QRStatus is the state of a pending QR login.
type QRStatus int

const (
	QRWaiting QRStatus = iota
	QRScanned
	QRConfirmed
)

func (s QRStatus) String() string {
	switch s {
	case QRWaiting:
		return "waiting"
	case QRScanned:
		return "scanned"
	case QRConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Passport poll codes.
const (
	qrCodeConfirmed = 0
	qrCodeExpired   = 86038
	qrCodeScanned   = 86090
	qrCodeWaiting   = 86101
)

// QRLogin is a generated login code: URL is what the QR image encodes.
type QRLogin struct {
	URL string
	Key string
}

// GenerateQR asks the passport service for a new login code.
func (c *Client) GenerateQR(ctx context.Context) (QRLogin, error) {
	var resp struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    struct {
			URL       string `json:"url"`
			QRCodeKey string `json:"qrcode_key"`
		} `json:"data"`
	}
	endpoint := c.opts.PassportBase + "/x/passport-login/web/qrcode/generate"
	if err := c.getJSON(ctx, "qr_generate", endpoint, &resp); err != nil {
		return QRLogin{}, err
	}
	if resp.Code != 0 {
		return QRLogin{}, &media.Error{Kind: media.ErrUpstreamProtocol, Op: "qr_generate", Code: resp.Code, Detail: resp.Message}
	}
	if resp.Data.URL == "" || resp.Data.QRCodeKey == "" {
		return QRLogin{}, media.Errorf(media.ErrUpstreamSchema, "qr_generate", "missing url or qrcode_key")
	}
	return QRLogin{URL: resp.Data.URL, Key: resp.Data.QRCodeKey}, nil
}

// PollQR reports the state of key once. On confirmation the session cookies
// land in the HTTP client's cookie jar.
func (c *Client) PollQR(ctx context.Context, key string) (QRStatus, error) {
	var resp struct {
		Data struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"data"`
	}
	q := url.Values{"qrcode_key": {key}}
	if err := c.getJSON(ctx, "qr_poll", plainURL(c.opts.PassportBase, "/x/passport-login/web/qrcode/poll", q), &resp); err != nil {
		return QRWaiting, err
	}
	switch resp.Data.Code {
	case qrCodeConfirmed:
		return QRConfirmed, nil
	case qrCodeWaiting:
		return QRWaiting, nil
	case qrCodeScanned:
		return QRScanned, nil
	case qrCodeExpired:
		return QRWaiting, ErrQRExpired
	default:
		return QRWaiting, &media.Error{Kind: media.ErrUpstreamProtocol, Op: "qr_poll", Code: resp.Data.Code, Detail: resp.Data.Message}
	}
}

// WaitQR polls until the code is confirmed, expires or ctx ends. onChange is
// called whenever the status changes and may be nil.
func (c *Client) WaitQR(ctx context.Context, key string, interval time.Duration, onChange func(QRStatus)) error {
	if interval <= 0 {
		interval = DefaultQRPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := QRWaiting
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		st, err := c.PollQR(ctx, key)
		if err != nil {
			return err
		}
		if st != last && onChange != nil {
			onChange(st)
		}
		last = st
		if st == QRConfirmed {
			return nil
		}
	}
}
