/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repoagent_http_requests_total",
			Help: "Total number of HTTP requests by handler, method and status code",
		},
		[]string{"handler", "method", "code"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repoagent_http_request_duration_seconds",
			Help:    "Duration of HTTP requests, including the full response stream",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"handler", "method"},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "repoagent_active_sessions",
			Help: "Number of agent sessions currently streaming",
		},
	)

	sessionCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repoagent_sessions_total",
			Help: "Total number of agent sessions by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)
)

// instrument wraps h with request counters and latency histograms labelled
// with name.
func instrument(name string, h http.Handler) http.Handler {
	labels := prometheus.Labels{"handler": name}
	return promhttp.InstrumentHandlerDuration(
		requestDuration.MustCurryWith(labels),
		promhttp.InstrumentHandlerCounter(requestCounter.MustCurryWith(labels), h),
	)
}
