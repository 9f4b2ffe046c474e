// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

// Package main is the entry point for the Bitcurve server.
//
// Bitcurve analyzes the bitrate curve of video files and serves it for
// interactive pan/zoom exploration. The server initializes components in
// the following order:
//
//  1. Configuration: layered defaults, config file, environment (Koanf v2)
//  2. CPU topology: hybrid core detection and the affinity scheduler
//  3. Prober: ffprobe/ffmpeg discovery
//  4. WebSocket hub: real-time progress and viewport updates
//  5. Analysis manager: single-flight probe + compute pipeline
//  6. HTTP server: REST API under /api/v1, Prometheus metrics on /metrics
//
// The hub and HTTP server run under a suture supervision tree; SIGINT and
// SIGTERM trigger a graceful shutdown with a bounded drain.
//
// # Configuration
//
// Settings are loaded via Koanf v2 with layered sources (highest wins):
// environment variables (BITCURVE_ prefix), a YAML config file, and
// built-in defaults.
//
// # Example Usage
//
//	export BITCURVE_SERVER_PORT=4880
//	export BITCURVE_SCHEDULER_ENABLED=true
//	./bitcurve
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/bitcurve/internal/affinity"
	"github.com/tomtom215/bitcurve/internal/analysis"
	"github.com/tomtom215/bitcurve/internal/api"
	"github.com/tomtom215/bitcurve/internal/config"
	"github.com/tomtom215/bitcurve/internal/engine"
	"github.com/tomtom215/bitcurve/internal/logging"
	"github.com/tomtom215/bitcurve/internal/metrics"
	"github.com/tomtom215/bitcurve/internal/probe"
	"github.com/tomtom215/bitcurve/internal/supervisor"
	"github.com/tomtom215/bitcurve/internal/supervisor/services"
	"github.com/tomtom215/bitcurve/internal/viewport"
	ws "github.com/tomtom215/bitcurve/internal/websocket"
)

func main() {
	// Load configuration first to get logging settings.
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Bool("scheduler_enabled", cfg.Scheduler.Enabled).
		Msg("Starting Bitcurve")

	// CPU topology and the affinity scheduler. With steering disabled the
	// scheduler still answers WorkerBudget, it just never restricts.
	var topo affinity.CoreTopology
	if cfg.Scheduler.Enabled {
		topo = affinity.Detect()
	} else {
		topo = affinity.Disabled()
	}
	sched := affinity.NewScheduler(topo)
	sched.SetEcoOptIn(cfg.Scheduler.EcoOptIn)

	// WebSocket hub, created early so every later component can broadcast.
	hub := ws.NewHub()

	sched.OnStateChange(func(state affinity.State) {
		hub.BroadcastSchedulerState(string(state))
		metrics.RecordSchedulerState(state == affinity.StateEfficiencyOnly, string(state))
	})
	metrics.RecordSchedulerState(false, string(sched.CurrentState()))

	// Prober. ffprobe is mandatory; a missing ffmpeg only disables the
	// decode-based duration fallback.
	proberOpts := []probe.Option{}
	if cfg.Analysis.FFprobePath != "" {
		proberOpts = append(proberOpts, probe.WithFFprobePath(cfg.Analysis.FFprobePath))
	}
	if cfg.Analysis.FFmpegPath != "" {
		proberOpts = append(proberOpts, probe.WithFFmpegPath(cfg.Analysis.FFmpegPath))
	}
	prober, err := probe.New(sched, proberOpts...)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to locate media binaries")
	}

	session := viewport.NewSession()
	manager := analysis.NewManager(cfg.Analysis, prober, engine.New(sched), sched, hub, session)
	manager.SetOverviewBudget(cfg.Viewport.OverviewBudget)

	handler := api.NewHandler(cfg, manager, session, sched, hub)
	router := api.NewRouter(handler, cfg)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}

	// Supervisor tree. Suture logs through slog, bridged into zerolog.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		manager.Cancel()
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain until the supervisor has fully stopped.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Bitcurve stopped gracefully")
}
