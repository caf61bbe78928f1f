// PulseKit - Self-Hosted Web Analytics and Error Monitoring
// Copyright 2026 PulseKit contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pulsekit/pulsekit

// Package config loads the server configuration from three layered
// sources with koanf: built-in defaults, an optional YAML file, and
// environment variables, in ascending precedence.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Environments accepted by Server.Environment.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the complete server configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Ingest   IngestConfig   `koanf:"ingest"`
	Auth     AuthConfig     `koanf:"auth"`
	Database DatabaseConfig `koanf:"database"`
	Ops      OpsConfig      `koanf:"ops"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Environment     string        `koanf:"environment"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// IngestConfig controls the event collection endpoint.
type IngestConfig struct {
	SiteID          string        `koanf:"site_id"`
	AllowedOrigins  []string      `koanf:"allowed_origins"`
	IgnorePaths     []string      `koanf:"ignore_paths"`
	RateLimit       int           `koanf:"rate_limit"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	RequireToken    bool          `koanf:"require_token"`
	TokenTTL        time.Duration `koanf:"token_ttl"`
}

// AuthConfig controls dashboard login and the route guard. Secret is
// the single shared credential; it signs session tokens, gates the
// admin routes, and is the dashboard password.
type AuthConfig struct {
	Secret           string        `koanf:"secret"`
	CookieMaxAge     time.Duration `koanf:"cookie_max_age"`
	DashboardOrigins []string      `koanf:"dashboard_origins"`
}

// DatabaseConfig selects the persistence backend. An empty DSN runs
// the server on the in-memory store, which is only useful for
// development.
type DatabaseConfig struct {
	DSN string `koanf:"dsn"`
}

// OpsConfig holds defaults for the maintenance routes.
type OpsConfig struct {
	RefreshDaysBack          int `koanf:"refresh_days_back"`
	ConsolidateRetentionDays int `koanf:"consolidate_retention_days"`
}

// LoggingConfig controls the zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// defaultConfig returns the built-in defaults, the lowest-precedence
// layer.
func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Environment:     EnvDevelopment,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Ingest: IngestConfig{
			SiteID:          "default",
			RateLimit:       30,
			RateLimitWindow: time.Minute,
			TokenTTL:        24 * time.Hour,
		},
		Auth: AuthConfig{
			CookieMaxAge: 7 * 24 * time.Hour,
		},
		Ops: OpsConfig{
			RefreshDaysBack:          7,
			ConsolidateRetentionDays: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate rejects configurations that would run insecurely or not at
// all. A weak secret is a security defect, so it fails here rather
// than at first request.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Auth.Secret) < 16 {
		errs = append(errs, errors.New("auth.secret must be at least 16 characters"))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.Environment != EnvDevelopment && c.Server.Environment != EnvProduction {
		errs = append(errs, fmt.Errorf("server.environment %q must be %q or %q",
			c.Server.Environment, EnvDevelopment, EnvProduction))
	}
	if c.Ingest.RateLimit < 1 {
		errs = append(errs, errors.New("ingest.rate_limit must be positive"))
	}
	if c.Ingest.RateLimitWindow < time.Second {
		errs = append(errs, errors.New("ingest.rate_limit_window must be at least 1s"))
	}
	if c.IsProduction() && c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required in production"))
	}

	return errors.Join(errs...)
}
