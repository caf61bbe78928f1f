// PulseKit - Self-Hosted Web Analytics and Error Monitoring
// Copyright 2026 PulseKit contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pulsekit/pulsekit

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulsekit/pulsekit/internal/auth"
	"github.com/pulsekit/pulsekit/internal/ingest"
	"github.com/pulsekit/pulsekit/internal/middleware"
)

// adminRateLimit is a coarse per-IP ceiling on the authenticated
// admin group. The ingestion and login endpoints carry their own
// sliding-window limiters.
const (
	adminRateLimit  = 100
	adminRateWindow = time.Minute
)

// RouterConfig collects the pieces the router mounts.
type RouterConfig struct {
	Ingest *ingest.Handler
	Auth   *auth.Handler
	Gate   *auth.Gate

	Handlers *Handlers

	// DashboardOrigins is the CORS allow-list for the admin group,
	// separate from the ingestion allow-list.
	DashboardOrigins []string
}

// NewRouter assembles the full route tree.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Metrics)

	// The ingestion and auth endpoints implement their own method,
	// CORS, and rate-limit policy, so they mount for all verbs.
	r.Handle("/api/pulse", cfg.Ingest)
	r.Handle("/api/pulse/auth", cfg.Auth)

	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.DashboardOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           86400,
		}))
		r.Use(httprate.Limit(adminRateLimit, adminRateWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Use(cfg.Gate.Require)

		r.Get("/api/pulse/token", cfg.Handlers.IssueToken)
		r.Post("/api/pulse/refresh", cfg.Handlers.Refresh)
		r.Post("/api/pulse/consolidate", cfg.Handlers.Consolidate)
	})

	r.Get("/healthz", cfg.Handlers.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
