// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus Metrics Integration for Production Observability
// This package provides instrumentation for:
// - Analysis pipeline (probe, packet extraction, compute)
// - Affinity scheduler state transitions
// - API endpoint latency and throughput
// - Viewport query serving
// - WebSocket connections

var (
	// Analysis Pipeline Metrics
	AnalysisTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_runs_total",
			Help: "Total number of analysis runs by outcome",
		},
		[]string{"outcome"}, // "completed", "failed", "cancelled", "rejected_busy"
	)

	AnalysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analysis_duration_seconds",
			Help:    "End-to-end analysis duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600}, // Long files take minutes
		},
	)

	PacketsExtracted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "packets_extracted_total",
			Help: "Total number of video packets extracted via ffprobe",
		},
	)

	ComputeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "compute_duration_seconds",
			Help:    "Windowed bitrate computation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"}, // "serial", "parallel"
	)

	ComputeSamples = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "compute_samples",
			Help:    "Number of samples per computed series",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
	)

	ComputeFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "compute_serial_fallbacks_total",
			Help: "Total number of parallel computations that fell back to serial",
		},
	)

	// Affinity Scheduler Metrics
	SchedulerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_efficiency_only",
			Help: "Scheduler placement state (0=all cores, 1=efficiency only)",
		},
	)

	SchedulerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_transitions_total",
			Help: "Total number of scheduler state transitions",
		},
		[]string{"to"}, // "all_cores", "efficiency_only"
	)

	// Viewport Metrics
	ViewportQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewport_queries_total",
			Help: "Total number of viewport data queries",
		},
		[]string{"kind"}, // "overview", "visible", "range"
	)

	DecimationRatio = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "decimation_ratio",
			Help:    "Input/output sample ratio of decimation (1 means untouched)",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}, // Optimized for API latency
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_dropped_total",
			Help: "Total number of WebSocket messages dropped on slow clients",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordAnalysis records one finished analysis run.
func RecordAnalysis(outcome string, duration time.Duration) {
	AnalysisTotal.WithLabelValues(outcome).Inc()
	if outcome == "completed" {
		AnalysisDuration.Observe(duration.Seconds())
	}
}

// RecordCompute records one windowed bitrate computation.
func RecordCompute(mode string, samples int, duration time.Duration) {
	ComputeDuration.WithLabelValues(mode).Observe(duration.Seconds())
	ComputeSamples.Observe(float64(samples))
}

// RecordSchedulerState updates the placement gauge and transition counter.
func RecordSchedulerState(efficiencyOnly bool, state string) {
	if efficiencyOnly {
		SchedulerState.Set(1)
	} else {
		SchedulerState.Set(0)
	}
	SchedulerTransitions.WithLabelValues(state).Inc()
}

// RecordDecimation records the reduction achieved by one decimation pass.
func RecordDecimation(in, out int) {
	if out > 0 {
		DecimationRatio.Observe(float64(in) / float64(out))
	}
}
