// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tomtom215/bitcurve/internal/affinity"
	"github.com/tomtom215/bitcurve/internal/config"
	"github.com/tomtom215/bitcurve/internal/engine"
	"github.com/tomtom215/bitcurve/internal/logging"
	"github.com/tomtom215/bitcurve/internal/metrics"
	"github.com/tomtom215/bitcurve/internal/models"
	"github.com/tomtom215/bitcurve/internal/probe"
	"github.com/tomtom215/bitcurve/internal/viewport"
)

// Progress percent boundaries per stage. Probing is quick, packet extraction
// dominates, and compute takes the rest; the short gap before compute covers
// sorting and chunk planning.
const (
	percentInfoDone     = 8.0
	percentPacketsDone  = 75.0
	percentComputeStart = 82.0
	percentComputeDone  = 97.0
)

var (
	// ErrAnalysisInProgress is returned when a run is already live.
	ErrAnalysisInProgress = errors.New("analysis: a run is already in progress")

	// ErrNoAnalysis is returned by operations that need a completed run.
	ErrNoAnalysis = errors.New("analysis: no completed analysis available")
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Prober is the media inspection surface the manager needs. Satisfied by
// *probe.Prober.
type Prober interface {
	VideoInfo(ctx context.Context, path string) (models.VideoInfo, error)
	Packets(ctx context.Context, path string, durationHint float64, progress probe.PacketProgress) ([]models.Packet, error)
}

// Broadcaster pushes run events to connected clients. Satisfied by
// *websocket.Hub.
type Broadcaster interface {
	BroadcastAnalysisProgress(analysisID, stage string, percent float64, note string)
	BroadcastAnalysisCompleted(analysisID string, info models.VideoInfo, samples int, elapsed time.Duration)
	BroadcastAnalysisError(analysisID string, err error)
}

// Snapshot is a point-in-time copy of a run's state, safe to serialize.
type Snapshot struct {
	ID          string           `json:"id"`
	Path        string           `json:"path"`
	Status      Status           `json:"status"`
	Stage       string           `json:"stage"`
	Percent     float64          `json:"percent"`
	Window      float64          `json:"window"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Error       string           `json:"error,omitempty"`
	Info        models.VideoInfo `json:"info"`
	Samples     int              `json:"samples"`
}

// run is the mutable state of one analysis.
type run struct {
	snapshot Snapshot
	cancel   context.CancelFunc
}

// Manager owns the single live run and the results of the last completed
// one. All methods are safe for concurrent use.
type Manager struct {
	cfg    config.AnalysisConfig
	prober Prober
	engine *engine.Engine
	sched  *affinity.Scheduler
	hub    Broadcaster

	session *viewport.Session

	// overviewBudget is passed to the viewport index; zero means the
	// package default.
	overviewBudget int

	mu      chan struct{} // 1-slot semaphore doubling as state mutex
	current *run
	index   *viewport.Index
	packets []models.Packet
	info    models.VideoInfo
	window  float64
}

// NewManager wires the pipeline together. session may be shared with the API
// layer; it is reset whenever a new analysis completes.
func NewManager(cfg config.AnalysisConfig, prober Prober, eng *engine.Engine, sched *affinity.Scheduler, hub Broadcaster, session *viewport.Session) *Manager {
	m := &Manager{
		cfg:     cfg,
		prober:  prober,
		engine:  eng,
		sched:   sched,
		hub:     hub,
		session: session,
		mu:      make(chan struct{}, 1),
	}
	m.mu <- struct{}{}
	return m
}

// SetOverviewBudget overrides the overview curve budget for future runs.
// Call before the first Start.
func (m *Manager) SetOverviewBudget(budget int) {
	m.overviewBudget = budget
}

func (m *Manager) lock()   { <-m.mu }
func (m *Manager) unlock() { m.mu <- struct{}{} }

// Start begins a new analysis of path. window 0 selects the configured
// default. Returns ErrAnalysisInProgress while another run is live.
func (m *Manager) Start(path string, window float64) (Snapshot, error) {
	if window == 0 {
		window = m.cfg.DefaultWindow
	}
	if window <= 0 {
		return Snapshot{}, engine.ErrInvalidWindow
	}

	m.lock()
	defer m.unlock()

	if m.current != nil && m.current.snapshot.Status == StatusRunning {
		metrics.AnalysisTotal.WithLabelValues("rejected_busy").Inc()
		return Snapshot{}, ErrAnalysisInProgress
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		snapshot: Snapshot{
			ID:        uuid.New().String(),
			Path:      path,
			Status:    StatusRunning,
			Stage:     "info",
			Window:    window,
			StartedAt: time.Now().UTC(),
		},
		cancel: cancel,
	}
	m.current = r
	m.sched.SetComputeActive(true)

	go m.execute(ctx, r, path, window)
	return r.snapshot, nil
}

// Recompute rebuilds the series from the retained packets with a new window.
// Only the compute stage runs; the file is not probed again.
func (m *Manager) Recompute(window float64) (Snapshot, error) {
	if window <= 0 {
		return Snapshot{}, engine.ErrInvalidWindow
	}

	m.lock()
	if m.current != nil && m.current.snapshot.Status == StatusRunning {
		m.unlock()
		metrics.AnalysisTotal.WithLabelValues("rejected_busy").Inc()
		return Snapshot{}, ErrAnalysisInProgress
	}
	if m.packets == nil {
		m.unlock()
		return Snapshot{}, ErrNoAnalysis
	}

	packets, info := m.packets, m.info
	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		snapshot: Snapshot{
			ID:        uuid.New().String(),
			Path:      m.current.snapshot.Path,
			Status:    StatusRunning,
			Stage:     "compute",
			Percent:   percentComputeStart,
			Window:    window,
			StartedAt: time.Now().UTC(),
			Info:      info,
		},
		cancel: cancel,
	}
	m.current = r
	m.sched.SetComputeActive(true)
	m.unlock()

	go func() {
		series, err := m.computeStage(ctx, r, packets, info, window)
		if err != nil {
			m.finishFailed(r, err)
			return
		}
		m.finishCompleted(r, packets, info, window, series)
	}()
	return r.snapshot, nil
}

// Cancel aborts the live run, if any.
func (m *Manager) Cancel() {
	m.lock()
	defer m.unlock()
	if m.current != nil && m.current.snapshot.Status == StatusRunning {
		m.current.cancel()
	}
}

// Current returns the latest run's snapshot.
func (m *Manager) Current() (Snapshot, bool) {
	m.lock()
	defer m.unlock()
	if m.current == nil {
		return Snapshot{}, false
	}
	return m.current.snapshot, true
}

// Index returns the viewport index of the last completed run.
func (m *Manager) Index() (*viewport.Index, error) {
	m.lock()
	defer m.unlock()
	if m.index == nil {
		return nil, ErrNoAnalysis
	}
	return m.index, nil
}

// Info returns the probed metadata of the last completed run.
func (m *Manager) Info() (models.VideoInfo, error) {
	m.lock()
	defer m.unlock()
	if m.index == nil {
		return models.VideoInfo{}, ErrNoAnalysis
	}
	return m.info, nil
}

// Window returns the aggregation window of the last completed run.
func (m *Manager) Window() float64 {
	m.lock()
	defer m.unlock()
	return m.window
}

// execute runs the full pipeline for one analysis.
func (m *Manager) execute(ctx context.Context, r *run, path string, window float64) {
	limiter := rate.NewLimiter(rate.Every(m.cfg.ProgressInterval), 1)

	m.progress(r, limiter, "info", 0, true)

	info, err := m.prober.VideoInfo(ctx, path)
	if err != nil {
		m.finishFailed(r, err)
		return
	}
	m.setInfo(r, info)
	m.progress(r, limiter, "packets", percentInfoDone, true)

	packets, err := m.prober.Packets(ctx, path, info.Duration, func(read, estimated int64) {
		frac := float64(read) / float64(estimated)
		if frac > 1 {
			frac = 1
		}
		m.progress(r, limiter, "packets", percentInfoDone+(percentPacketsDone-percentInfoDone)*frac, false)
	})
	if err != nil {
		m.finishFailed(r, err)
		return
	}
	metrics.PacketsExtracted.Add(float64(len(packets)))

	series, err := m.computeStage(ctx, r, packets, info, window)
	if err != nil {
		m.finishFailed(r, err)
		return
	}
	m.finishCompleted(r, packets, info, window, series)
}

// computeStage runs the windowed computation with progress mapping.
func (m *Manager) computeStage(ctx context.Context, r *run, packets []models.Packet, info models.VideoInfo, window float64) (models.Series, error) {
	limiter := rate.NewLimiter(rate.Every(m.cfg.ProgressInterval), 1)
	m.progress(r, limiter, "compute", percentComputeStart, true)

	started := time.Now()
	series, err := m.engine.Compute(ctx, packets, window, info.Duration, func(done, total int) {
		frac := float64(done) / float64(total)
		m.progress(r, limiter, "compute", percentComputeStart+(percentComputeDone-percentComputeStart)*frac, false)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordCompute(computeMode(len(series), m.sched.WorkerBudget()), len(series), time.Since(started))
	return series, nil
}

func computeMode(samples, workers int) string {
	if samples < engine.MinParallelPoints || workers <= 1 {
		return "serial"
	}
	return "parallel"
}

// setInfo records probed metadata on the live run.
func (m *Manager) setInfo(r *run, info models.VideoInfo) {
	m.lock()
	r.snapshot.Info = info
	m.unlock()
}

// progress updates the run snapshot and broadcasts, throttled unless forced.
func (m *Manager) progress(r *run, limiter *rate.Limiter, stage string, percent float64, force bool) {
	m.lock()
	r.snapshot.Stage = stage
	r.snapshot.Percent = percent
	id := r.snapshot.ID
	m.unlock()

	if force || limiter.Allow() {
		m.hub.BroadcastAnalysisProgress(id, stage, percent, "")
	}
}

func (m *Manager) finishFailed(r *run, err error) {
	now := time.Now().UTC()

	m.lock()
	if errors.Is(err, context.Canceled) {
		r.snapshot.Status = StatusCancelled
		metrics.AnalysisTotal.WithLabelValues("cancelled").Inc()
	} else {
		r.snapshot.Status = StatusFailed
		r.snapshot.Error = err.Error()
		metrics.AnalysisTotal.WithLabelValues("failed").Inc()
	}
	r.snapshot.CompletedAt = &now
	r.cancel()
	m.unlock()

	m.sched.SetComputeActive(false)

	if !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Str("analysis_id", r.snapshot.ID).Str("path", r.snapshot.Path).Msg("analysis failed")
		m.hub.BroadcastAnalysisError(r.snapshot.ID, err)
	}
}

func (m *Manager) finishCompleted(r *run, packets []models.Packet, info models.VideoInfo, window float64, series models.Series) {
	now := time.Now().UTC()
	index := viewport.NewIndexWithBudget(series, m.overviewBudget)

	m.lock()
	r.snapshot.Status = StatusCompleted
	r.snapshot.CompletedAt = &now
	r.snapshot.Percent = 100
	r.snapshot.Stage = "done"
	r.snapshot.Samples = len(series)
	m.packets = packets
	m.info = info
	m.window = window
	m.index = index
	r.cancel()
	elapsed := now.Sub(r.snapshot.StartedAt)
	m.unlock()

	m.session.Reset()
	m.sched.SetComputeActive(false)
	metrics.RecordAnalysis("completed", elapsed)

	logging.Info().
		Str("analysis_id", r.snapshot.ID).
		Str("path", r.snapshot.Path).
		Int("samples", len(series)).
		Float64("window", window).
		Dur("elapsed", elapsed).
		Msg("analysis completed")

	m.hub.BroadcastAnalysisProgress(r.snapshot.ID, "done", 100, "")
	m.hub.BroadcastAnalysisCompleted(r.snapshot.ID, info, len(series), elapsed)
}
