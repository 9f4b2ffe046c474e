// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/bitcurve/config.yaml",
	"/etc/bitcurve/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix namespaces all environment overrides, e.g. BITCURVE_SERVER_PORT.
const envPrefix = "BITCURVE_"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			// Companion app for a local UI; bind loopback unless told otherwise.
			Host:        "127.0.0.1",
			Port:        4880,
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Analysis: AnalysisConfig{
			FFprobePath:      "",
			FFmpegPath:       "",
			WindowPresets:    []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
			DefaultWindow:    1.0,
			ProgressInterval: 100 * time.Millisecond,
		},
		Viewport: ViewportConfig{
			OverviewBudget: 400,
		},
		Scheduler: SchedulerConfig{
			Enabled:  true,
			EcoOptIn: false, // restricting cores is always opt-in
		},
		API: APIConfig{
			RateLimitReqs:     100,
			RateLimitWindow:   1 * time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// Precedence is ENV > File > Defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// BITCURVE_SERVER_PORT -> server.port
	envProvider := env.Provider(envPrefix, ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Post-process slice fields from comma-separated strings
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	// Check environment variable first
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

// envTransformFunc maps environment variable names to koanf config paths.
// The variable name after the prefix is matched against the known keys, so
// multi-word field names keep their underscores:
//
//	BITCURVE_SERVER_PORT              -> server.port
//	BITCURVE_ANALYSIS_DEFAULT_WINDOW  -> analysis.default_window
//	BITCURVE_API_RATE_LIMIT_REQS      -> api.rate_limit_reqs
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))

	envMappings := map[string]string{
		"server_host":        "server.host",
		"server_port":        "server.port",
		"server_timeout":     "server.timeout",
		"server_environment": "server.environment",

		"analysis_ffprobe_path":      "analysis.ffprobe_path",
		"analysis_ffmpeg_path":       "analysis.ffmpeg_path",
		"analysis_window_presets":    "analysis.window_presets",
		"analysis_default_window":    "analysis.default_window",
		"analysis_progress_interval": "analysis.progress_interval",

		"viewport_overview_budget": "viewport.overview_budget",

		"scheduler_enabled":    "scheduler.enabled",
		"scheduler_eco_opt_in": "scheduler.eco_opt_in",

		"api_rate_limit_reqs":     "api.rate_limit_reqs",
		"api_rate_limit_window":   "api.rate_limit_window",
		"api_rate_limit_disabled": "api.rate_limit_disabled",
		"api_cors_origins":        "api.cors_origins",

		"logging_level":  "logging.level",
		"logging_format": "logging.format",
		"logging_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	// Unknown variables are dropped rather than guessed at.
	return ""
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars come in as strings, but the config expects
// slices.
func processSliceFields(k *koanf.Koanf) error {
	if err := processStringSlice(k, "api.cors_origins"); err != nil {
		return err
	}
	return processFloatSlice(k, "analysis.window_presets")
}

func processStringSlice(k *koanf.Koanf, path string) error {
	strVal, ok := k.Get(path).(string)
	if !ok || strVal == "" {
		return nil
	}

	parts := strings.Split(strVal, ",")
	trimmed := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			trimmed = append(trimmed, p)
		}
	}
	if len(trimmed) == 0 {
		return nil
	}
	if err := k.Set(path, trimmed); err != nil {
		return fmt.Errorf("failed to set %s: %w", path, err)
	}
	return nil
}

func processFloatSlice(k *koanf.Koanf, path string) error {
	strVal, ok := k.Get(path).(string)
	if !ok || strVal == "" {
		return nil
	}

	var values []float64
	for _, p := range strings.Split(strVal, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return fmt.Errorf("invalid value %q for %s: %w", p, path, err)
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil
	}
	if err := k.Set(path, values); err != nil {
		return fmt.Errorf("failed to set %s: %w", path, err)
	}
	return nil
}
