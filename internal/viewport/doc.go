// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

// Package viewport serves pan/zoom reads over a computed bitrate series.
//
// An Index wraps one immutable series and answers three queries: the cached
// low-budget overview curve, a time-range slice located by binary search, and
// the visible slice decimated to a budget that scales with how far the user
// has zoomed in. Decimation is peak-preserving: within each bucket the
// highest-bitrate sample survives, so spikes never vanish from a zoomed-out
// view.
//
// A Session holds the current viewport fractions and applies zoom, pan and
// reset with clamping, including the minimum view range that stops the user
// from zooming into nothing.
package viewport
