// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

// Package engine computes windowed bitrate series from packet traces.
//
// The series is built from half-open windows [t, t+w) advanced by w/2, so
// adjacent windows overlap by 50% and the curve stays smooth at window
// boundaries. Each sample carries the window midpoint as its time and the
// window's total payload converted to kilobits per second.
//
// Large series are split into contiguous chunks and computed by a pool of
// OS-thread-locked workers sized from the CPU topology, with each worker
// honoring the affinity scheduler's live target mask. Any worker failure
// abandons the parallel attempt and the whole series is recomputed serially,
// so callers always get a complete result.
package engine
