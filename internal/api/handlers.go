// PulseKit - Self-Hosted Web Analytics and Error Monitoring
// Copyright 2026 PulseKit contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pulsekit/pulsekit

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/pulsekit/pulsekit/internal/logging"
	"github.com/pulsekit/pulsekit/internal/store"
	"github.com/pulsekit/pulsekit/internal/token"
)

// Handlers serves the admin and operational routes.
type Handlers struct {
	store  store.Store
	secret string

	tokenTTL      time.Duration
	refreshDays   int
	retentionDays int
}

// NewHandlers wires the admin routes to the store. tokenTTL bounds
// issued ingestion tokens; refreshDays and retentionDays are the
// defaults applied when a request body omits them.
func NewHandlers(st store.Store, secret string, tokenTTL time.Duration, refreshDays, retentionDays int) *Handlers {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	if refreshDays <= 0 {
		refreshDays = 7
	}
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &Handlers{
		store:         st,
		secret:        secret,
		tokenTTL:      tokenTTL,
		refreshDays:   refreshDays,
		retentionDays: retentionDays,
	}
}

// IssueToken hands the tracker a short-lived ingestion token. The
// route sits behind the auth gate, so possession of a dashboard
// session or the bearer secret is already proven.
func (h *Handlers) IssueToken(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"token": token.Create(h.secret, h.tokenTTL),
	})
}

// Refresh recomputes the rollup aggregates. Cron callers hit this via
// the gate's bearer path.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DaysBack int `json:"daysBack"`
	}
	if r.Body != nil {
		// An empty or absent body falls through to the default.
		_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body)
	}
	days := body.DaysBack
	if days <= 0 {
		days = h.refreshDays
	}

	if err := h.store.RefreshAggregates(r.Context(), days); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Int("days_back", days).
			Msg("Aggregate refresh failed")
		respondError(w, http.StatusInternalServerError, "Failed to refresh aggregates")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Consolidate folds old raw events into daily aggregates and reports
// the row counts.
func (h *Handlers) Consolidate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RetentionDays int `json:"retentionDays"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body)
	}
	retention := body.RetentionDays
	if retention <= 0 {
		retention = h.retentionDays
	}

	res, err := h.store.ConsolidateAndCleanup(r.Context(), retention)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Int("retention_days", retention).
			Msg("Consolidation failed")
		respondError(w, http.StatusInternalServerError, "Failed to consolidate events")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":               true,
		"rowsConsolidated": res.RowsConsolidated,
		"rowsDeleted":      res.RowsDeleted,
	})
}

// Healthz reports store readiness.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ready(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
