// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

package viewport

import (
	"sync"

	"github.com/tomtom215/bitcurve/internal/models"
)

// Session holds the current viewport and applies navigation with clamping.
// Safe for concurrent use.
type Session struct {
	mu sync.Mutex
	vp models.Viewport
}

// NewSession starts at the full timeline.
func NewSession() *Session {
	return &Session{vp: models.FullViewport()}
}

// Viewport returns the current viewport.
func (s *Session) Viewport() models.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vp
}

// Reset returns to the full timeline.
func (s *Session) Reset() models.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vp = models.FullViewport()
	return s.vp
}

// Zoom scales the visible range around its center. A scale below 1 zooms in,
// above 1 zooms out.
func (s *Session) Zoom(scale float64) models.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zoomAtLocked(scale, s.vp.Center())
}

// ZoomAt scales the visible range while keeping anchor (a fraction of the
// full timeline, typically the cursor position) at the same on-screen
// position.
func (s *Session) ZoomAt(scale, anchor float64) models.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zoomAtLocked(scale, anchor)
}

// Pan shifts the view by delta visible-widths. Positive pans toward the end.
func (s *Session) Pan(delta float64) models.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()

	width := s.vp.Range()
	s.vp = clampViewport(s.vp.StartFraction+delta*width, width)
	return s.vp
}

func (s *Session) zoomAtLocked(scale, anchor float64) models.Viewport {
	if scale <= 0 {
		return s.vp
	}
	if anchor < s.vp.StartFraction || anchor > s.vp.EndFraction {
		anchor = s.vp.Center()
	}

	width := s.vp.Range()
	newWidth := width * scale

	// Keep the anchor at the same relative position inside the view.
	rel := 0.5
	if width > 0 {
		rel = (anchor - s.vp.StartFraction) / width
	}
	s.vp = clampViewport(anchor-rel*newWidth, newWidth)
	return s.vp
}

// clampViewport normalizes a start/width pair to a valid viewport: the width
// stays within [MinViewRange, 1] and the window stays inside [0, 1].
func clampViewport(start, width float64) models.Viewport {
	if width < models.MinViewRange {
		width = models.MinViewRange
	}
	if width > 1 {
		width = 1
	}
	if start < 0 {
		start = 0
	}
	if start+width > 1 {
		start = 1 - width
	}
	return models.Viewport{StartFraction: start, EndFraction: start + width}
}
