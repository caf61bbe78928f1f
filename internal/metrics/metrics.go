// PulseKit - Self-Hosted Web Analytics and Error Monitoring
// Copyright 2026 PulseKit contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pulsekit/pulsekit

// Package metrics exposes Prometheus collectors for the ingestion
// pipeline and the HTTP surface. Collectors are registered with the
// default registry and served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rejection reasons for EventsRejected.
const (
	ReasonForbiddenOrigin = "forbidden_origin"
	ReasonBadToken        = "bad_token"
	ReasonRateLimited     = "rate_limited"
	ReasonInvalidJSON     = "invalid_json"
	ReasonInvalidPayload  = "invalid_payload"
	ReasonStoreError      = "store_error"
)

// Login outcomes for AuthAttempts.
const (
	ResultSuccess     = "success"
	ResultBadPassword = "bad_password"
	ResultRateLimited = "rate_limited"
)

var (
	// EventsIngested counts successfully persisted events.
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_events_ingested_total",
		Help: "Analytics events persisted, by site and event type.",
	}, []string{"site_id", "event_type"})

	// EventsIgnored counts events dropped by the ignore-path list.
	EventsIgnored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_events_ignored_total",
		Help: "Events silently dropped because their path is ignored.",
	})

	// EventsRejected counts requests terminated before persistence.
	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_events_rejected_total",
		Help: "Ingestion requests rejected, by reason.",
	}, []string{"reason"})

	// AuthAttempts counts dashboard login attempts.
	AuthAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_auth_attempts_total",
		Help: "Dashboard login attempts, by result.",
	}, []string{"result"})

	// HTTPRequestDuration observes request latency per route and
	// status class.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pulse_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
	}, []string{"method", "path", "status"})

	// HTTPRequestsInFlight gauges concurrently served requests.
	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulse_http_requests_in_flight",
		Help: "HTTP requests currently being served.",
	})
)
