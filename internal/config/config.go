// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the complete application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Analysis  AnalysisConfig  `koanf:"analysis"`
	Viewport  ViewportConfig  `koanf:"viewport"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	API       APIConfig       `koanf:"api"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host        string        `koanf:"host" validate:"required"`
	Port        int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout     time.Duration `koanf:"timeout" validate:"min=1s"`
	Environment string        `koanf:"environment" validate:"oneof=development production"`
}

// AnalysisConfig configures probing and the bitrate computation.
type AnalysisConfig struct {
	// FFprobePath and FFmpegPath override PATH discovery. Empty means look
	// up the binary name.
	FFprobePath string `koanf:"ffprobe_path"`
	FFmpegPath  string `koanf:"ffmpeg_path"`

	// WindowPresets are the selectable aggregation windows in seconds.
	WindowPresets []float64 `koanf:"window_presets" validate:"min=1,dive,gt=0"`

	// DefaultWindow is the window used when a request names none. It must
	// be one of the presets.
	DefaultWindow float64 `koanf:"default_window" validate:"gt=0"`

	// ProgressInterval throttles progress broadcasts to clients.
	ProgressInterval time.Duration `koanf:"progress_interval" validate:"min=10ms"`
}

// ViewportConfig configures pan/zoom serving.
type ViewportConfig struct {
	// OverviewBudget caps the cached full-range overview curve.
	OverviewBudget int `koanf:"overview_budget" validate:"min=10"`
}

// SchedulerConfig configures core-affinity steering.
type SchedulerConfig struct {
	// Enabled turns topology detection and steering on. Disabled leaves
	// every worker under the OS scheduler.
	Enabled bool `koanf:"enabled"`

	// EcoOptIn is the startup value of the efficiency-core opt-in; the API
	// can change it at runtime.
	EcoOptIn bool `koanf:"eco_opt_in"`
}

// APIConfig configures the REST surface.
type APIConfig struct {
	RateLimitReqs     int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"min=1s"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration, combining struct-tag validation with
// cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	found := false
	for _, preset := range c.Analysis.WindowPresets {
		if preset == c.Analysis.DefaultWindow {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("analysis.default_window %v is not among window_presets %v",
			c.Analysis.DefaultWindow, c.Analysis.WindowPresets)
	}
	return nil
}
