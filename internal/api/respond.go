// PulseKit - Self-Hosted Web Analytics and Error Monitoring
// Copyright 2026 PulseKit contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pulsekit/pulsekit

// Package api assembles the HTTP surface: the ingestion and auth
// endpoints, the gate-guarded admin routes, and the operational
// endpoints.
package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/pulsekit/pulsekit/internal/logging"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
