// PulseKit - Self-Hosted Web Analytics and Error Monitoring
// Copyright 2026 PulseKit contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pulsekit/pulsekit

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file search.
const ConfigPathEnvVar = "PULSE_CONFIG_PATH"

// DefaultConfigPaths are searched in order when ConfigPathEnvVar is
// unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"/etc/pulsekit/config.yaml",
}

// Load builds the configuration from defaults, an optional YAML file,
// and PULSE_* environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("PULSE_", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps PULSE_* environment variables to config
// paths, e.g. PULSE_AUTH_SECRET -> auth.secret.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "PULSE_"))

	mappings := map[string]string{
		"host":             "server.host",
		"port":             "server.port",
		"environment":      "server.environment",
		"read_timeout":     "server.read_timeout",
		"write_timeout":    "server.write_timeout",
		"shutdown_timeout": "server.shutdown_timeout",

		"site_id":           "ingest.site_id",
		"allowed_origins":   "ingest.allowed_origins",
		"ignore_paths":      "ingest.ignore_paths",
		"rate_limit":        "ingest.rate_limit",
		"rate_limit_window": "ingest.rate_limit_window",
		"require_token":     "ingest.require_token",
		"token_ttl":         "ingest.token_ttl",

		"auth_secret":       "auth.secret",
		"cookie_max_age":    "auth.cookie_max_age",
		"dashboard_origins": "auth.dashboard_origins",

		"database_dsn": "database.dsn",

		"refresh_days_back":          "ops.refresh_days_back",
		"consolidate_retention_days": "ops.consolidate_retention_days",

		"log_level":  "logging.level",
		"log_format": "logging.format",
	}
	if path, ok := mappings[key]; ok {
		return path
	}

	// Unmapped variables fall back to underscore-to-dot nesting so new
	// config keys work without touching the table.
	return strings.ReplaceAll(key, "_", ".")
}

// sliceConfigPaths are slice-valued settings that arrive from the
// environment as comma-separated strings.
var sliceConfigPaths = []string{
	"ingest.allowed_origins",
	"ingest.ignore_paths",
	"auth.dashboard_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("set %s: %w", path, err)
			}
		}
	}
	return nil
}
