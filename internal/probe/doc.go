// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

// Package probe wraps the ffprobe and ffmpeg binaries for media inspection.
//
// It answers two questions about a file: what is it (codec, dimensions,
// frame rate, duration) and when did each video packet arrive and how big
// was it. Packet extraction streams ffprobe's CSV output line by line, so
// multi-gigabyte files never buffer in memory, and reports progress against
// a byte estimate derived from the duration since ffprobe itself gives no
// progress signal.
//
// Spawned processes inherit the affinity scheduler's current target mask so
// a backgrounded analysis keeps its subprocesses on efficiency cores too.
package probe
