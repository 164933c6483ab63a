// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveUpstream(t *testing.T) {
	okBefore := testutil.ToFloat64(UpstreamRequests.WithLabelValues("season", "ok"))
	errBefore := testutil.ToFloat64(UpstreamRequests.WithLabelValues("season", "error"))

	ObserveUpstream("season", time.Now(), nil)
	ObserveUpstream("season", time.Now(), errors.New("boom"))

	assert.InDelta(t, okBefore+1, testutil.ToFloat64(UpstreamRequests.WithLabelValues("season", "ok")), 0.001)
	assert.InDelta(t, errBefore+1, testutil.ToFloat64(UpstreamRequests.WithLabelValues("season", "error")), 0.001)
	assert.Positive(t, testutil.CollectAndCount(UpstreamDuration))
}
