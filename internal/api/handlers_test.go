// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/bitcurve/internal/affinity"
	"github.com/tomtom215/bitcurve/internal/analysis"
	"github.com/tomtom215/bitcurve/internal/config"
	"github.com/tomtom215/bitcurve/internal/engine"
	"github.com/tomtom215/bitcurve/internal/models"
	"github.com/tomtom215/bitcurve/internal/probe"
	"github.com/tomtom215/bitcurve/internal/viewport"
	ws "github.com/tomtom215/bitcurve/internal/websocket"
)

type stubProber struct {
	info    models.VideoInfo
	packets []models.Packet
	block   chan struct{}
}

func (s *stubProber) VideoInfo(_ context.Context, _ string) (models.VideoInfo, error) {
	return s.info, nil
}

func (s *stubProber) Packets(ctx context.Context, _ string, _ float64, _ probe.PacketProgress) ([]models.Packet, error) {
	if s.block != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.block:
		}
	}
	return s.packets, nil
}

type testServer struct {
	handler http.Handler
	manager *analysis.Manager
	prober  *stubProber
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{
		Analysis: config.AnalysisConfig{
			WindowPresets:    []float64{0.5, 1.0, 2.0},
			DefaultWindow:    1.0,
			ProgressInterval: 10 * time.Millisecond,
		},
		API: config.APIConfig{
			RateLimitDisabled: true,
		},
	}

	var packets []models.Packet
	for ts := 0.0; ts < 10; ts += 0.05 {
		packets = append(packets, models.Packet{Timestamp: ts, SizeBytes: 1000})
	}
	prober := &stubProber{
		info:    models.VideoInfo{Duration: 10, FrameRate: 25, Codec: "h264", Width: 1920, Height: 1080},
		packets: packets,
	}

	sched := affinity.NewScheduler(affinity.CoreTopology{TotalLogical: 1, AllMask: 0x1})
	session := viewport.NewSession()
	hub := ws.NewHub()
	manager := analysis.NewManager(cfg.Analysis, prober, engine.New(sched), sched, hub, session)
	handler := NewHandler(cfg, manager, session, sched, hub)

	return &testServer{
		handler: NewRouter(handler, cfg).Setup(),
		manager: manager,
		prober:  prober,
	}
}

// do performs a request and decodes the response envelope.
func (ts *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var envelope APIResponse
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
		}
	}
	return rec, envelope
}

// analyze runs a full analysis to completion.
func (ts *testServer) analyze(t *testing.T) {
	t.Helper()

	rec, _ := ts.do(t, http.MethodPost, "/api/v1/analyses", map[string]interface{}{"path": "/media/movie.mkv"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start analysis: status %d, body %s", rec.Code, rec.Body.String())
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if snap, ok := ts.manager.Current(); ok && snap.Status == analysis.StatusCompleted {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("analysis did not complete")
}

func TestHealth(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	rec, envelope := ts.do(t, http.MethodGet, "/api/v1/health", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !envelope.Success {
		t.Error("envelope success = false")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}
	if rec.Header().Get("X-Request-ID") == "" && rec.Header().Get("X-Request-Id") == "" {
		// chi sets the header on the request context; the response carries it
		// through the envelope meta instead.
		if envelope.Meta == nil || envelope.Meta.RequestID == "" {
			t.Error("no request ID in response meta")
		}
	}
}

func TestStartAnalysis_Validation(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	// Missing path.
	rec, envelope := ts.do(t, http.MethodPost, "/api/v1/analyses", map[string]interface{}{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeValidationFailed {
		t.Errorf("error envelope = %+v", envelope.Error)
	}

	// Malformed JSON.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", bytes.NewBufferString("{"))
	rec2 := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON status = %d, want 400", rec2.Code)
	}
}

func TestStartAnalysis_ConflictWhileRunning(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.prober.block = make(chan struct{})

	rec, _ := ts.do(t, http.MethodPost, "/api/v1/analyses", map[string]interface{}{"path": "/media/a.mkv"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first start: status %d", rec.Code)
	}

	// Wait for the run to be live before the second request.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap, ok := ts.manager.Current(); ok && snap.Status == analysis.StatusRunning {
			break
		}
		time.Sleep(time.Millisecond)
	}

	rec, envelope := ts.do(t, http.MethodPost, "/api/v1/analyses", map[string]interface{}{"path": "/media/b.mkv"})
	if rec.Code != http.StatusConflict {
		t.Errorf("second start: status %d, want 409", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeConflict {
		t.Errorf("error envelope = %+v", envelope.Error)
	}

	close(ts.prober.block)
}

func TestSeriesEndpoints_RequireAnalysis(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	for _, path := range []string{
		"/api/v1/series/overview",
		"/api/v1/series/visible",
		"/api/v1/series/range?start=0&end=5",
		"/api/v1/video",
	} {
		rec, _ := ts.do(t, http.MethodGet, path, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404 before any analysis", path, rec.Code)
		}
	}
}

func TestSeriesOverview_AfterAnalysis(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.analyze(t)

	rec, envelope := ts.do(t, http.MethodGet, "/api/v1/series/overview", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	raw, _ := json.Marshal(envelope.Data)
	var data SeriesData
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Count == 0 || len(data.Samples) != data.Count {
		t.Errorf("data = count %d, samples %d", data.Count, len(data.Samples))
	}
	if data.Window != 1.0 {
		t.Errorf("window = %v, want 1.0", data.Window)
	}
	if data.MaxTime < 9.5 {
		t.Errorf("max time = %v, want close to 10", data.MaxTime)
	}
}

func TestSeriesRange_Validation(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.analyze(t)

	for _, query := range []string{
		"start=abc&end=5",
		"start=0",
		"start=5&end=1",
		"start=0&end=5&budget=0",
	} {
		rec, _ := ts.do(t, http.MethodGet, "/api/v1/series/range?"+query, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("range?%s = %d, want 400", query, rec.Code)
		}
	}

	rec, _ := ts.do(t, http.MethodGet, "/api/v1/series/range?start=2&end=4&budget=50", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("valid range = %d, want 200", rec.Code)
	}
}

func TestViewportEndpoints(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	rec, envelope := ts.do(t, http.MethodPost, "/api/v1/viewport/zoom", map[string]interface{}{"scale": 0.5})
	if rec.Code != http.StatusOK {
		t.Fatalf("zoom status = %d", rec.Code)
	}

	raw, _ := json.Marshal(envelope.Data)
	var vp models.Viewport
	if err := json.Unmarshal(raw, &vp); err != nil {
		t.Fatal(err)
	}
	if vp.Range() != 0.5 {
		t.Errorf("range after zoom = %v, want 0.5", vp.Range())
	}

	// Zero scale fails validation.
	rec, _ = ts.do(t, http.MethodPost, "/api/v1/viewport/zoom", map[string]interface{}{"scale": 0})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("zoom scale=0 status = %d, want 400", rec.Code)
	}

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/viewport/pan", map[string]interface{}{"delta": 0.5})
	if rec.Code != http.StatusOK {
		t.Errorf("pan status = %d", rec.Code)
	}

	rec, envelope = ts.do(t, http.MethodPost, "/api/v1/viewport/reset", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}
	raw, _ = json.Marshal(envelope.Data)
	if err := json.Unmarshal(raw, &vp); err != nil {
		t.Fatal(err)
	}
	if !vp.IsFull() {
		t.Errorf("viewport after reset = %+v, want full", vp)
	}
}

func TestSchedulerEndpoints(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	rec, envelope := ts.do(t, http.MethodGet, "/api/v1/scheduler", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get scheduler status = %d", rec.Code)
	}

	raw, _ := json.Marshal(envelope.Data)
	var data SchedulerData
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatal(err)
	}
	if data.State != affinity.StateAllCores {
		t.Errorf("initial state = %v, want all_cores", data.State)
	}

	rec, envelope = ts.do(t, http.MethodPost, "/api/v1/scheduler/eco", map[string]interface{}{"opt_in": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("eco status = %d", rec.Code)
	}
	raw, _ = json.Marshal(envelope.Data)
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatal(err)
	}
	if !data.EcoOptIn {
		t.Error("eco opt-in not recorded")
	}

	rec, envelope = ts.do(t, http.MethodPost, "/api/v1/scheduler/background", map[string]interface{}{"background": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("background status = %d", rec.Code)
	}
	raw, _ = json.Marshal(envelope.Data)
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatal(err)
	}
	if !data.Background {
		t.Error("background not recorded")
	}
	// Uniform test topology never restricts placement.
	if data.State != affinity.StateAllCores {
		t.Errorf("state = %v, want all_cores on uniform topology", data.State)
	}
}

func TestCancelAnalysis(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.prober.block = make(chan struct{})

	rec, _ := ts.do(t, http.MethodPost, "/api/v1/analyses", map[string]interface{}{"path": "/media/a.mkv"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start: status %d", rec.Code)
	}

	rec, _ = ts.do(t, http.MethodDelete, "/api/v1/analyses/current", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("cancel status = %d, want 204", rec.Code)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if snap, ok := ts.manager.Current(); ok && snap.Status == analysis.StatusCancelled {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("run was not cancelled")
}

func TestSetWindow_Recompute(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	// Before any analysis.
	rec, _ := ts.do(t, http.MethodPost, "/api/v1/analyses/window", map[string]interface{}{"window": 0.5})
	if rec.Code != http.StatusNotFound {
		t.Errorf("recompute before analysis = %d, want 404", rec.Code)
	}

	ts.analyze(t)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/analyses/window", map[string]interface{}{"window": 0.5})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("recompute status = %d", rec.Code)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if snap, ok := ts.manager.Current(); ok && snap.Status == analysis.StatusCompleted && snap.Window == 0.5 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("recompute did not complete")
}

func TestWindows(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	rec, envelope := ts.do(t, http.MethodGet, "/api/v1/windows", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	raw, _ := json.Marshal(envelope.Data)
	var data WindowsData
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatal(err)
	}
	if len(data.Presets) != 3 {
		t.Errorf("presets = %v", data.Presets)
	}
}

func TestVideoInfo(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodGet, "/api/v1/video", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("video before analysis = %d, want 404", rec.Code)
	}

	ts.analyze(t)

	rec, envelope := ts.do(t, http.MethodGet, "/api/v1/video", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	raw, _ := json.Marshal(envelope.Data)
	var data VideoData
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatal(err)
	}
	if data.Codec != "h264" || data.Duration != 10 {
		t.Errorf("video data = %+v", data)
	}
	if data.DurationText != "0:10" {
		t.Errorf("duration text = %q, want 0:10", data.DurationText)
	}
}
