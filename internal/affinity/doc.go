// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

// Package affinity discovers CPU core topology and steers where analysis
// workers run while a computation is live.
//
// On hybrid CPUs (performance + efficiency cores) the scheduler can bias the
// whole computation onto efficiency cores when the host application reports
// that it moved to the background, and restore all cores on foreground. The
// mechanism is broadcast-and-poll: the scheduler writes the current target
// mask into a single shared atomic word, and every worker re-checks that word
// at a bounded cadence (MaskPollInterval samples) and re-applies it to its own
// OS thread. Workers can therefore lag a scheduling change by at most one
// polling interval; this bounded staleness is intentional, the hint is
// advisory power/thermal optimization rather than hard isolation.
//
// All platform calls are best-effort. When topology detection fails or the
// platform exposes no affinity control, the scheduler degrades to a uniform
// topology where every steering operation is a silent no-op and the worker
// budget is derived purely from the logical core count.
package affinity
