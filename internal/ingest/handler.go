// PulseKit - Self-Hosted Web Analytics and Error Monitoring
// Copyright 2026 PulseKit contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pulsekit/pulsekit

// Package ingest implements the analytics event collection endpoint.
//
// Each request runs through an ordered policy chain: origin check,
// preflight, method check, ingestion-token check, rate limit, body
// parse, payload validation, ignore-path short circuit, geo
// enrichment, persistence. The first step that produces a response
// terminates the chain. Geo headers are trusted verbatim; the edge
// layer that injects them is assumed to be trusted infrastructure.
package ingest

import (
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/pulsekit/pulsekit/internal/event"
	"github.com/pulsekit/pulsekit/internal/logging"
	"github.com/pulsekit/pulsekit/internal/metrics"
	"github.com/pulsekit/pulsekit/internal/ratelimit"
	"github.com/pulsekit/pulsekit/internal/store"
	"github.com/pulsekit/pulsekit/internal/token"
)

// TokenHeader carries the ingestion credential issued to the tracker.
const TokenHeader = "X-Pulse-Token"

// maxBodyBytes caps the request body well above the largest valid
// payload (2 KiB path plus 4 KiB meta).
const maxBodyBytes = 1 << 20

// Defaults applied by NewHandler when the config leaves them zero.
const (
	DefaultRateLimit       = 30
	DefaultRateLimitWindow = 60 * time.Second
)

// Config controls one ingestion endpoint.
type Config struct {
	// SiteID is the site recorded for events that carry no override.
	SiteID string

	// AllowedOrigins enables the origin check when non-empty. Entries
	// may be exact origins, "*", or "*.domain" subdomain wildcards.
	AllowedOrigins []string

	// IgnorePaths lists paths acknowledged with 200 but never
	// persisted.
	IgnorePaths []string

	// RateLimit and RateLimitWindow bound requests per client IP.
	RateLimit       int
	RateLimitWindow time.Duration

	// Secret enables the ingestion-token check when non-empty. Tokens
	// are verified against it via the token package.
	Secret string

	// OnError is invoked with persistence failures before the 500 is
	// written. Optional.
	OnError func(error)
}

// Handler serves the event collection endpoint.
type Handler struct {
	cfg     Config
	limiter *ratelimit.Limiter
	store   store.Store
	ignore  map[string]struct{}
	steps   []policyStep
	now     func() time.Time
}

// requestState accumulates what the policy chain learns about one
// request.
type requestState struct {
	origin string // resolved Access-Control-Allow-Origin value
	body   []byte
	ev     *event.Event
}

// policyStep handles one stage of the chain. Returning true ends the
// request.
type policyStep func(w http.ResponseWriter, r *http.Request, st *requestState) bool

// NewHandler builds an ingestion handler around the given store.
func NewHandler(cfg Config, st store.Store) *Handler {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = DefaultRateLimitWindow
	}

	h := &Handler{
		cfg:     cfg,
		limiter: ratelimit.New(cfg.RateLimit, cfg.RateLimitWindow),
		store:   st,
		ignore:  make(map[string]struct{}, len(cfg.IgnorePaths)),
		now:     time.Now,
	}
	for _, p := range cfg.IgnorePaths {
		h.ignore[p] = struct{}{}
	}
	h.steps = []policyStep{
		h.stepOrigin,
		h.stepPreflight,
		h.stepMethod,
		h.stepToken,
		h.stepRateLimit,
		h.stepParse,
		h.stepValidate,
		h.stepIgnorePath,
		h.stepPersist,
	}
	return h
}

// Limiter exposes the handler's rate limiter for periodic pruning.
func (h *Handler) Limiter() *ratelimit.Limiter {
	return h.limiter
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	st := &requestState{}
	for _, step := range h.steps {
		if step(w, r, st) {
			return
		}
	}
}

// stepOrigin enforces the allow-list. A rejected origin gets a bare
// 403 without CORS headers so the allow-list is not leaked.
func (h *Handler) stepOrigin(w http.ResponseWriter, r *http.Request, st *requestState) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return false
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	resolved, ok := resolveOrigin(origin, h.cfg.AllowedOrigins)
	if !ok {
		metrics.EventsRejected.WithLabelValues(metrics.ReasonForbiddenOrigin).Inc()
		writeError(w, http.StatusForbidden, "Forbidden")
		return true
	}
	st.origin = resolved
	w.Header().Set("Access-Control-Allow-Origin", resolved)
	w.Header().Set("Vary", "Origin")
	return false
}

func (h *Handler) stepPreflight(w http.ResponseWriter, r *http.Request, st *requestState) bool {
	if r.Method != http.MethodOptions {
		return false
	}
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+TokenHeader)
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
	return true
}

func (h *Handler) stepMethod(w http.ResponseWriter, r *http.Request, st *requestState) bool {
	if r.Method == http.MethodPost {
		return false
	}
	w.Header().Set("Allow", "POST, OPTIONS")
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	return true
}

func (h *Handler) stepToken(w http.ResponseWriter, r *http.Request, st *requestState) bool {
	if h.cfg.Secret == "" {
		return false
	}
	if token.Verify(h.cfg.Secret, r.Header.Get(TokenHeader)) {
		return false
	}
	metrics.EventsRejected.WithLabelValues(metrics.ReasonBadToken).Inc()
	writeError(w, http.StatusForbidden, "Forbidden")
	return true
}

func (h *Handler) stepRateLimit(w http.ResponseWriter, r *http.Request, st *requestState) bool {
	if !h.limiter.Limited(clientIP(r)) {
		return false
	}
	metrics.EventsRejected.WithLabelValues(metrics.ReasonRateLimited).Inc()
	w.Header().Set("Retry-After", retryAfter(h.limiter))
	writeError(w, http.StatusTooManyRequests, "Too many requests")
	return true
}

func (h *Handler) stepParse(w http.ResponseWriter, r *http.Request, st *requestState) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil || !json.Valid(body) {
		metrics.EventsRejected.WithLabelValues(metrics.ReasonInvalidJSON).Inc()
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return true
	}
	st.body = body
	return false
}

func (h *Handler) stepValidate(w http.ResponseWriter, r *http.Request, st *requestState) bool {
	ev, err := event.Parse(st.body)
	if err != nil {
		metrics.EventsRejected.WithLabelValues(metrics.ReasonInvalidPayload).Inc()
		writeError(w, http.StatusBadRequest, "Invalid payload")
		return true
	}
	st.ev = ev
	return false
}

func (h *Handler) stepIgnorePath(w http.ResponseWriter, r *http.Request, st *requestState) bool {
	if _, ok := h.ignore[st.ev.Path]; !ok {
		return false
	}
	metrics.EventsIgnored.Inc()
	writeJSON(w, http.StatusOK, okBody)
	return true
}

func (h *Handler) stepPersist(w http.ResponseWriter, r *http.Request, st *requestState) bool {
	rec := event.NewRecord(st.ev, h.cfg.SiteID, geoFromHeaders(r.Header), h.now())
	if err := h.store.InsertEvent(r.Context(), rec); err != nil {
		if h.cfg.OnError != nil {
			h.cfg.OnError(err)
		}
		metrics.EventsRejected.WithLabelValues(metrics.ReasonStoreError).Inc()
		logging.Ctx(r.Context()).Error().Err(err).
			Str("site_id", rec.SiteID).
			Str("event_type", rec.EventType).
			Msg("Failed to persist event")
		writeError(w, http.StatusInternalServerError, "Failed to log event")
		return true
	}
	metrics.EventsIngested.WithLabelValues(rec.SiteID, rec.EventType).Inc()
	writeJSON(w, http.StatusOK, okBody)
	return true
}

var okBody = map[string]bool{"ok": true}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
