// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"context"
	"os"
	"regexp"
	"time"

	"github.com/ManuGH/bilihls/internal/media"
	"github.com/ManuGH/bilihls/internal/metrics"
)

var segmentNameRE = regexp.MustCompile(`^[0-9A-Za-z_-]+\.ts$`)

// Poll budgets of the read path.
const (
	DefaultPlaylistRetries = 50
	DefaultSegmentRetries  = 80
	DefaultPollInterval    = 100 * time.Millisecond
)

// WaitForManifest polls path until it holds content, up to retries reads
// spaced by interval. There is no sleep after the last read.
func WaitForManifest(ctx context.Context, path string, retries int, interval time.Duration) ([]byte, error) {
	for i := 0; i < retries; i++ {
		if data, err := os.ReadFile(path); err == nil && len(data) > 0 { // #nosec G304
			return data, nil
		}
		if i == retries-1 {
			break
		}
		if err := sleep(ctx, interval); err != nil {
			return nil, err
		}
	}
	metrics.WaitTimeouts.WithLabelValues("playlist").Inc()
	return nil, media.Errorf(media.ErrTimeout, "wait playlist", "%s after %d polls", path, retries)
}

// WaitForSegment polls path until it has been observed non-empty with the
// same size on two consecutive checks, then returns its content.
func WaitForSegment(ctx context.Context, path string, retries int, interval time.Duration) ([]byte, error) {
	var last int64 = -1
	for i := 0; i < retries; i++ {
		if st, err := os.Stat(path); err == nil && st.Size() > 0 {
			if st.Size() == last {
				data, err := os.ReadFile(path) // #nosec G304
				if err == nil {
					return data, nil
				}
			}
			last = st.Size()
		} else {
			last = -1
		}
		if i == retries-1 {
			break
		}
		if err := sleep(ctx, interval); err != nil {
			return nil, err
		}
	}
	metrics.WaitTimeouts.WithLabelValues("segment").Inc()
	return nil, media.Errorf(media.ErrTimeout, "wait segment", "%s after %d polls", path, retries)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
