// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

package models

import (
	"fmt"
	"math"
)

// DefaultFrameRate is substituted when a probed frame rate is missing or
// non-positive.
const DefaultFrameRate = 25.0

// VideoInfo describes the probed source stream. It is informational only;
// the engine needs just Duration and the packet list.
type VideoInfo struct {
	// Duration is the declared container duration in seconds. The effective
	// analysis duration may exceed it when packet timestamps run past the end.
	Duration float64 `json:"duration"`

	// FrameRate is the video frame rate in frames per second. Never <= 0;
	// invalid probed values are replaced with DefaultFrameRate.
	FrameRate float64 `json:"frame_rate"`

	Codec     string `json:"codec"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	SizeBytes int64  `json:"size_bytes"`

	// BitRate is the container-level average bitrate in bits per second,
	// 0 when the container does not declare one.
	BitRate int64 `json:"bit_rate"`
}

// FormatTimeShort renders seconds as M:SS or H:MM:SS.
func FormatTimeShort(seconds float64) string {
	if seconds < 0 {
		return "0:00"
	}
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

// FormatTimeFrames renders seconds as a frame-accurate timecode
// (M:SS:FF or H:MM:SS:FF) using the given frame rate. A non-positive frame
// rate falls back to DefaultFrameRate.
func FormatTimeFrames(seconds, frameRate float64) string {
	if seconds < 0 {
		return "0:00:00"
	}
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}

	totalFrames := seconds * frameRate
	frameInSecond := int(math.Mod(totalFrames, frameRate))
	total := int(seconds)

	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d:%02d", hours, minutes, secs, frameInSecond)
	}
	return fmt.Sprintf("%d:%02d:%02d", minutes, secs, frameInSecond)
}
