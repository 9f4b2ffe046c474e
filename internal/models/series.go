// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

package models

import "sort"

// Packet is the metadata of a single probed media packet.
//
// Packets are produced once per probed frame by the probe collaborator and
// handed to the engine, which may reorder but never mutate them.
type Packet struct {
	// Timestamp is the packet presentation time in seconds from stream start.
	Timestamp float64 `json:"timestamp"`

	// SizeBytes is the packet payload size in bytes.
	SizeBytes int64 `json:"size_bytes"`
}

// Sample is one point on the bitrate curve.
//
// A sample represents the center of one analysis window: Time is the window
// midpoint, BitrateKbps the aggregate bitrate over the window. Samples are
// immutable once produced.
type Sample struct {
	// Time is the sample position in seconds (window midpoint).
	Time float64 `json:"time"`

	// BitrateKbps is the windowed bitrate in kilobits per second. Always >= 0;
	// a window containing no packets yields exactly 0.
	BitrateKbps float64 `json:"bitrate_kbps"`
}

// Series is a time-ordered sequence of bitrate samples.
//
// Invariant: Time values are non-decreasing (ties can occur at chunk merge
// boundaries and are resolved by the final sort), so binary search over the
// time axis is valid.
type Series []Sample

// DecimatedSeries is a Series-shaped output capped at a point budget.
// It is produced on demand for rendering and never persisted.
type DecimatedSeries = Series

// SortByTime sorts the series by sample time in place. The engine calls this
// once after merging parallel chunk results; afterwards the series is
// read-only.
func (s Series) SortByTime() {
	sort.Slice(s, func(i, j int) bool { return s[i].Time < s[j].Time })
}

// MaxTime returns the time of the last sample, or 0 for an empty series.
func (s Series) MaxTime() float64 {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1].Time
}

// PeakBitrate returns the maximum bitrate in the series, or 0 when empty.
func (s Series) PeakBitrate() float64 {
	peak := 0.0
	for _, sample := range s {
		if sample.BitrateKbps > peak {
			peak = sample.BitrateKbps
		}
	}
	return peak
}

// AverageBitrate returns the mean bitrate across all samples, or 0 when empty.
func (s Series) AverageBitrate() float64 {
	if len(s) == 0 {
		return 0
	}
	var total float64
	for _, sample := range s {
		total += sample.BitrateKbps
	}
	return total / float64(len(s))
}

// IsSorted reports whether sample times are non-decreasing.
func (s Series) IsSorted() bool {
	return sort.SliceIsSorted(s, func(i, j int) bool { return s[i].Time < s[j].Time })
}
