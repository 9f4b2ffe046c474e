// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

//go:build !linux

package affinity

// applyThreadMask is a no-op on platforms without sched_setaffinity.
func applyThreadMask(_ uint64) error { return nil }

// applyProcessMask is a no-op on platforms without sched_setaffinity.
func applyProcessMask(_ int, _ uint64) error { return nil }
