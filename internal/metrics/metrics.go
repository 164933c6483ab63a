// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics declares the Prometheus collectors of the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpstreamRequests counts platform API calls by endpoint and outcome.
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bilihls_upstream_requests_total",
		Help: "Total upstream API requests",
	}, []string{"endpoint", "outcome"})

	// UpstreamDuration tracks upstream API latency.
	UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bilihls_upstream_request_duration_seconds",
		Help:    "Duration of upstream API requests",
		Buckets: prometheus.ExponentialBuckets(0.025, 2.0, 10), // 25ms to ~12.8s
	}, []string{"endpoint"})

	// PipelineLaunches counts packaging processes started, by video mode.
	PipelineLaunches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bilihls_pipeline_launches_total",
		Help: "Total packaging processes launched",
	}, []string{"mode"})

	// PipelineDeduplicated counts Ensure calls that found work already present.
	PipelineDeduplicated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bilihls_pipeline_deduplicated_total",
		Help: "Ensure calls satisfied without launching a process",
	}, []string{"state"})

	// PipelineFailures counts packaging failures by stage.
	PipelineFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bilihls_pipeline_failures_total",
		Help: "Total packaging failures",
	}, []string{"stage"})

	// PipelineActive is the number of running packaging processes.
	PipelineActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bilihls_pipeline_active",
		Help: "Packaging processes currently running",
	})

	// PipelineDuration tracks how long packaging processes run.
	PipelineDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bilihls_pipeline_duration_seconds",
		Help:    "Wall time of packaging processes",
		Buckets: prometheus.ExponentialBuckets(1, 2.0, 12), // 1s to ~34m
	}, []string{"outcome"})

	// WaitTimeouts counts playlist and segment polls that gave up.
	WaitTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bilihls_wait_timeouts_total",
		Help: "Polls for playlist or segment output that timed out",
	}, []string{"kind"})

	// DownloadAttempts counts candidate URL attempts by result.
	DownloadAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bilihls_download_attempts_total",
		Help: "Download attempts per candidate URL",
	}, []string{"result"})

	// ProcSignals counts signals sent to child process groups.
	ProcSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bilihls_proc_signals_total",
		Help: "Signals sent to child process groups",
	}, []string{"signal", "result"})

	// ProcExits counts child process exits observed during termination.
	ProcExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bilihls_proc_exits_total",
		Help: "Child process exits observed while terminating",
	}, []string{"result"})

	// HTTPRequests counts served HTTP requests.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bilihls_http_requests_total",
		Help: "Total HTTP requests served",
	}, []string{"method", "route", "status"})

	// HTTPDuration tracks served request latency.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bilihls_http_request_duration_seconds",
		Help:    "Duration of served HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// ObserveUpstream records one upstream call.
func ObserveUpstream(endpoint string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	UpstreamRequests.WithLabelValues(endpoint, outcome).Inc()
	UpstreamDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
