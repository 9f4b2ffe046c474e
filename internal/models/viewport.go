// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

package models

// MinViewRange is the smallest visible fraction of the timeline. Zoom
// operations saturate here instead of letting start and end cross.
const MinViewRange = 0.005

// Viewport is the currently visible fraction of the full time axis during
// interactive pan/zoom.
//
// Invariants: 0 <= StartFraction < EndFraction <= 1 and
// EndFraction-StartFraction >= MinViewRange. The viewport package owns all
// mutations; everything else treats a Viewport as a value.
type Viewport struct {
	StartFraction float64 `json:"start_fraction"`
	EndFraction   float64 `json:"end_fraction"`
}

// FullViewport returns the viewport covering the entire timeline.
func FullViewport() Viewport {
	return Viewport{StartFraction: 0.0, EndFraction: 1.0}
}

// Range returns the visible fraction of the timeline.
func (v Viewport) Range() float64 {
	return v.EndFraction - v.StartFraction
}

// Center returns the midpoint fraction of the visible range.
func (v Viewport) Center() float64 {
	return (v.StartFraction + v.EndFraction) / 2
}

// IsFull reports whether the whole timeline is visible.
func (v Viewport) IsFull() bool {
	return v.StartFraction <= 0 && v.EndFraction >= 1
}

// TimeBounds maps the fractional viewport onto absolute series time.
func (v Viewport) TimeBounds(maxTime float64) (start, end float64) {
	return v.StartFraction * maxTime, v.EndFraction * maxTime
}
