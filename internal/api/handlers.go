// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/tomtom215/bitcurve/internal/affinity"
	"github.com/tomtom215/bitcurve/internal/analysis"
	"github.com/tomtom215/bitcurve/internal/config"
	"github.com/tomtom215/bitcurve/internal/engine"
	"github.com/tomtom215/bitcurve/internal/metrics"
	"github.com/tomtom215/bitcurve/internal/models"
	"github.com/tomtom215/bitcurve/internal/viewport"
	ws "github.com/tomtom215/bitcurve/internal/websocket"
)

// Handler implements all API endpoints.
type Handler struct {
	cfg       *config.Config
	manager   *analysis.Manager
	session   *viewport.Session
	sched     *affinity.Scheduler
	hub       *ws.Hub
	validate  *validator.Validate
	startedAt time.Time
}

// NewHandler creates the endpoint handler set.
func NewHandler(cfg *config.Config, manager *analysis.Manager, session *viewport.Session, sched *affinity.Scheduler, hub *ws.Hub) *Handler {
	return &Handler{
		cfg:       cfg,
		manager:   manager,
		session:   session,
		sched:     sched,
		hub:       hub,
		validate:  validator.New(),
		startedAt: time.Now(),
	}
}

// decode unmarshals and validates a JSON request body. Returns false after
// writing the error response.
func (h *Handler) decode(rw *ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		rw.ValidationError("request validation failed", err.Error())
		return false
	}
	return true
}

// ---- Health ----

// HealthData is the /health payload.
type HealthData struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Clients       int     `json:"websocket_clients"`
	HybridCPU     bool    `json:"hybrid_cpu"`
}

// Health reports liveness and basic runtime facts.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(HealthData{
		Status:        "ok",
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		Clients:       h.hub.GetClientCount(),
		HybridCPU:     h.sched.Topology().Supported,
	})
}

// ---- Analysis ----

// StartAnalysisRequest asks for a new analysis run.
type StartAnalysisRequest struct {
	Path   string  `json:"path" validate:"required"`
	Window float64 `json:"window" validate:"gte=0"`
}

// StartAnalysis begins analyzing a file. 409 while another run is live.
func (h *Handler) StartAnalysis(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req StartAnalysisRequest
	if !h.decode(rw, r, &req) {
		return
	}

	snap, err := h.manager.Start(req.Path, req.Window)
	switch {
	case errors.Is(err, analysis.ErrAnalysisInProgress):
		rw.Conflict("an analysis is already in progress")
	case errors.Is(err, engine.ErrInvalidWindow):
		rw.BadRequest("window must be positive")
	case err != nil:
		rw.InternalError(err.Error())
	default:
		rw.Accepted(snap)
	}
}

// CurrentAnalysis returns the latest run snapshot.
func (h *Handler) CurrentAnalysis(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	snap, ok := h.manager.Current()
	if !ok {
		rw.NotFound("no analysis has been started")
		return
	}
	rw.Success(snap)
}

// CancelAnalysis aborts the live run.
func (h *Handler) CancelAnalysis(w http.ResponseWriter, r *http.Request) {
	h.manager.Cancel()
	NewResponseWriter(w, r).NoContent()
}

// WindowRequest selects a new aggregation window.
type WindowRequest struct {
	Window float64 `json:"window" validate:"gt=0"`
}

// SetWindow recomputes the series from retained packets with a new window.
func (h *Handler) SetWindow(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req WindowRequest
	if !h.decode(rw, r, &req) {
		return
	}

	snap, err := h.manager.Recompute(req.Window)
	switch {
	case errors.Is(err, analysis.ErrAnalysisInProgress):
		rw.Conflict("an analysis is already in progress")
	case errors.Is(err, analysis.ErrNoAnalysis):
		rw.NotFound("no completed analysis to recompute")
	case errors.Is(err, engine.ErrInvalidWindow):
		rw.BadRequest("window must be positive")
	case err != nil:
		rw.InternalError(err.Error())
	default:
		rw.Accepted(snap)
	}
}

// WindowsData lists the selectable aggregation windows.
type WindowsData struct {
	Presets []float64 `json:"presets"`
	Current float64   `json:"current"`
}

// Windows returns the configured window presets and the active window.
func (h *Handler) Windows(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(WindowsData{
		Presets: h.cfg.Analysis.WindowPresets,
		Current: h.manager.Window(),
	})
}

// VideoData augments the probed metadata with display strings.
type VideoData struct {
	models.VideoInfo
	DurationText string `json:"duration_text"`
}

// VideoInfo returns the probed metadata of the last completed analysis.
func (h *Handler) VideoInfo(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	info, err := h.manager.Info()
	if err != nil {
		rw.NotFound("no completed analysis")
		return
	}
	rw.Success(VideoData{
		VideoInfo:    info,
		DurationText: models.FormatTimeShort(info.Duration),
	})
}

// ---- Series ----

// SeriesData is the payload for all series endpoints.
type SeriesData struct {
	Samples models.Series   `json:"samples"`
	Count   int             `json:"count"`
	MaxTime float64         `json:"max_time"`
	Window  float64         `json:"window"`
	View    *models.Viewport `json:"viewport,omitempty"`
}

// index fetches the current viewport index or writes 404.
func (h *Handler) index(rw *ResponseWriter) (*viewport.Index, bool) {
	ix, err := h.manager.Index()
	if err != nil {
		rw.NotFound("no completed analysis")
		return nil, false
	}
	return ix, true
}

// SeriesOverview returns the cached low-budget full-range curve.
func (h *Handler) SeriesOverview(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ix, ok := h.index(rw)
	if !ok {
		return
	}
	metrics.ViewportQueries.WithLabelValues("overview").Inc()

	samples := ix.Overview()
	rw.Success(SeriesData{
		Samples: samples,
		Count:   len(samples),
		MaxTime: ix.MaxTime(),
		Window:  h.manager.Window(),
	})
}

// SeriesVisible returns the decimated slice inside the current viewport.
func (h *Handler) SeriesVisible(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ix, ok := h.index(rw)
	if !ok {
		return
	}
	metrics.ViewportQueries.WithLabelValues("visible").Inc()

	vp := h.session.Viewport()
	samples := ix.Visible(vp)
	rw.Success(SeriesData{
		Samples: samples,
		Count:   len(samples),
		MaxTime: ix.MaxTime(),
		Window:  h.manager.Window(),
		View:    &vp,
	})
}

// SeriesRange returns raw samples in [start, end] seconds, optionally
// decimated to a budget.
func (h *Handler) SeriesRange(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ix, ok := h.index(rw)
	if !ok {
		return
	}

	start, err := parseFloatParam(r, "start")
	if err != nil {
		rw.BadRequest("invalid start parameter")
		return
	}
	end, err := parseFloatParam(r, "end")
	if err != nil {
		rw.BadRequest("invalid end parameter")
		return
	}
	if end < start {
		rw.BadRequest("end must not be before start")
		return
	}
	metrics.ViewportQueries.WithLabelValues("range").Inc()

	samples := ix.Range(start, end)
	if budgetStr := r.URL.Query().Get("budget"); budgetStr != "" {
		budget, err := strconv.Atoi(budgetStr)
		if err != nil || budget <= 0 {
			rw.BadRequest("invalid budget parameter")
			return
		}
		in := len(samples)
		samples = viewport.Decimate(samples, budget)
		metrics.RecordDecimation(in, len(samples))
	}

	rw.Success(SeriesData{
		Samples: samples,
		Count:   len(samples),
		MaxTime: ix.MaxTime(),
		Window:  h.manager.Window(),
	})
}

func parseFloatParam(r *http.Request, name string) (float64, error) {
	return strconv.ParseFloat(r.URL.Query().Get(name), 64)
}

// ---- Viewport ----

// GetViewport returns the current viewport.
func (h *Handler) GetViewport(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.session.Viewport())
}

// ZoomRequest scales the viewport. Anchor, when present, is the timeline
// fraction to keep stationary.
type ZoomRequest struct {
	Scale  float64  `json:"scale" validate:"gt=0"`
	Anchor *float64 `json:"anchor,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// ViewportZoom scales the visible range.
func (h *Handler) ViewportZoom(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req ZoomRequest
	if !h.decode(rw, r, &req) {
		return
	}

	var vp models.Viewport
	if req.Anchor != nil {
		vp = h.session.ZoomAt(req.Scale, *req.Anchor)
	} else {
		vp = h.session.Zoom(req.Scale)
	}
	h.hub.BroadcastViewportChanged(vp)
	rw.Success(vp)
}

// PanRequest shifts the viewport by a multiple of its own width.
type PanRequest struct {
	Delta float64 `json:"delta"`
}

// ViewportPan shifts the visible range.
func (h *Handler) ViewportPan(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req PanRequest
	if !h.decode(rw, r, &req) {
		return
	}

	vp := h.session.Pan(req.Delta)
	h.hub.BroadcastViewportChanged(vp)
	rw.Success(vp)
}

// ViewportReset returns to the full timeline.
func (h *Handler) ViewportReset(w http.ResponseWriter, r *http.Request) {
	vp := h.session.Reset()
	h.hub.BroadcastViewportChanged(vp)
	NewResponseWriter(w, r).Success(vp)
}

// ---- Scheduler ----

// SchedulerData describes the affinity scheduler to clients.
type SchedulerData struct {
	State      affinity.State        `json:"state"`
	EcoOptIn   bool                  `json:"eco_opt_in"`
	Background bool                  `json:"background"`
	Topology   affinity.CoreTopology `json:"topology"`
}

// GetScheduler returns placement state and the detected topology.
func (h *Handler) GetScheduler(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(SchedulerData{
		State:      h.sched.CurrentState(),
		EcoOptIn:   h.sched.EcoOptIn(),
		Background: h.sched.Background(),
		Topology:   h.sched.Topology(),
	})
}

// BackgroundRequest reports the host application's visibility.
type BackgroundRequest struct {
	Background bool `json:"background"`
}

// SchedulerBackground records a background/foreground transition.
func (h *Handler) SchedulerBackground(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req BackgroundRequest
	if !h.decode(rw, r, &req) {
		return
	}

	h.sched.SetBackground(req.Background)
	rw.Success(SchedulerData{
		State:      h.sched.CurrentState(),
		EcoOptIn:   h.sched.EcoOptIn(),
		Background: h.sched.Background(),
		Topology:   h.sched.Topology(),
	})
}

// EcoRequest toggles the efficiency-core opt-in.
type EcoRequest struct {
	OptIn bool `json:"opt_in"`
}

// SchedulerEco records the user's efficiency-core preference.
func (h *Handler) SchedulerEco(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req EcoRequest
	if !h.decode(rw, r, &req) {
		return
	}

	h.sched.SetEcoOptIn(req.OptIn)
	rw.Success(SchedulerData{
		State:      h.sched.CurrentState(),
		EcoOptIn:   h.sched.EcoOptIn(),
		Background: h.sched.Background(),
		Topology:   h.sched.Topology(),
	})
}

// ---- WebSocket ----

// WebSocket upgrades the connection and attaches it to the hub.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	ws.ServeWS(h.hub, w, r)
}
