// PulseKit - Self-Hosted Web Analytics and Error Monitoring
// Copyright 2026 PulseKit contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pulsekit/pulsekit

// Command server runs the PulseKit analytics server: the event
// ingestion endpoint, dashboard auth, the gate-guarded maintenance
// routes, and the operational endpoints.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pulsekit/pulsekit/internal/api"
	"github.com/pulsekit/pulsekit/internal/auth"
	"github.com/pulsekit/pulsekit/internal/config"
	"github.com/pulsekit/pulsekit/internal/ingest"
	"github.com/pulsekit/pulsekit/internal/logging"
	"github.com/pulsekit/pulsekit/internal/store"
	"github.com/pulsekit/pulsekit/internal/supervisor"
	"github.com/pulsekit/pulsekit/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	st, err := openStore(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize store")
	}
	defer st.Close()

	ingestSecret := ""
	if cfg.Ingest.RequireToken {
		ingestSecret = cfg.Auth.Secret
	}
	ingestHandler := ingest.NewHandler(ingest.Config{
		SiteID:          cfg.Ingest.SiteID,
		AllowedOrigins:  cfg.Ingest.AllowedOrigins,
		IgnorePaths:     cfg.Ingest.IgnorePaths,
		RateLimit:       cfg.Ingest.RateLimit,
		RateLimitWindow: cfg.Ingest.RateLimitWindow,
		Secret:          ingestSecret,
	}, st)

	authHandler, err := auth.NewHandler(cfg.Auth.Secret,
		auth.WithCookieMaxAge(cfg.Auth.CookieMaxAge),
		auth.WithProduction(cfg.IsProduction()))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize auth handler")
	}
	gate, err := auth.NewGate(cfg.Auth.Secret)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize auth gate")
	}

	router := api.NewRouter(api.RouterConfig{
		Ingest: ingestHandler,
		Auth:   authHandler,
		Gate:   gate,
		Handlers: api.NewHandlers(st, cfg.Auth.Secret, cfg.Ingest.TokenTTL,
			cfg.Ops.RefreshDaysBack, cfg.Ops.ConsolidateRetentionDays),
		DashboardOrigins: cfg.Auth.DashboardOrigins,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.Add(services.NewHTTPService(server, cfg.Server.ShutdownTimeout))
	tree.Add(services.NewJanitorService(0,
		ingestHandler.Limiter(), authHandler.Limiter()))

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().
		Str("addr", cfg.Addr()).
		Str("environment", cfg.Server.Environment).
		Str("site_id", cfg.Ingest.SiteID).
		Msg("PulseKit server starting")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Fatal().Err(err).Msg("Supervisor exited with error")
	}
	logging.Info().Msg("Server stopped")
}

// openStore connects to Postgres when a DSN is configured and falls
// back to the in-memory store otherwise. Production requires a DSN at
// config validation, so the fallback only serves development runs.
func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.Database.DSN == "" {
		logging.Warn().Msg("No database DSN configured, using in-memory store")
		return store.NewMemory(), nil
	}
	return store.NewPostgres(context.Background(), cfg.Database.DSN)
}
