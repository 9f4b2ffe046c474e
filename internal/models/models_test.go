// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

package models

import (
	"math"
	"testing"
)

func TestSeries_SortByTime(t *testing.T) {
	t.Parallel()

	s := Series{
		{Time: 3.0, BitrateKbps: 300},
		{Time: 1.0, BitrateKbps: 100},
		{Time: 2.0, BitrateKbps: 200},
	}
	s.SortByTime()

	want := []float64{1.0, 2.0, 3.0}
	for i, sample := range s {
		if sample.Time != want[i] {
			t.Errorf("sample %d time = %v, want %v", i, sample.Time, want[i])
		}
	}
	if !s.IsSorted() {
		t.Error("IsSorted() = false after SortByTime")
	}
}

func TestSeries_Stats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		series  Series
		maxTime float64
		peak    float64
		avg     float64
	}{
		{
			name:   "empty",
			series: Series{},
		},
		{
			name:    "single",
			series:  Series{{Time: 0.05, BitrateKbps: 160}},
			maxTime: 0.05,
			peak:    160,
			avg:     160,
		},
		{
			name: "multiple",
			series: Series{
				{Time: 0.0, BitrateKbps: 100},
				{Time: 1.0, BitrateKbps: 300},
				{Time: 2.0, BitrateKbps: 200},
			},
			maxTime: 2.0,
			peak:    300,
			avg:     200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.series.MaxTime(); got != tt.maxTime {
				t.Errorf("MaxTime() = %v, want %v", got, tt.maxTime)
			}
			if got := tt.series.PeakBitrate(); got != tt.peak {
				t.Errorf("PeakBitrate() = %v, want %v", got, tt.peak)
			}
			if got := tt.series.AverageBitrate(); math.Abs(got-tt.avg) > 1e-9 {
				t.Errorf("AverageBitrate() = %v, want %v", got, tt.avg)
			}
		})
	}
}

func TestViewport_Helpers(t *testing.T) {
	t.Parallel()

	v := Viewport{StartFraction: 0.25, EndFraction: 0.75}

	if got := v.Range(); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("Range() = %v, want 0.5", got)
	}
	if got := v.Center(); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("Center() = %v, want 0.5", got)
	}
	if v.IsFull() {
		t.Error("IsFull() = true for partial viewport")
	}
	if !FullViewport().IsFull() {
		t.Error("FullViewport().IsFull() = false")
	}

	start, end := v.TimeBounds(100)
	if start != 25 || end != 75 {
		t.Errorf("TimeBounds(100) = (%v, %v), want (25, 75)", start, end)
	}
}

func TestFormatTimeShort(t *testing.T) {
	t.Parallel()

	tests := []struct {
		seconds float64
		want    string
	}{
		{-1, "0:00"},
		{0, "0:00"},
		{59.9, "0:59"},
		{61, "1:01"},
		{3600, "1:00:00"},
		{3725, "1:02:05"},
	}

	for _, tt := range tests {
		if got := FormatTimeShort(tt.seconds); got != tt.want {
			t.Errorf("FormatTimeShort(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestFormatTimeFrames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		seconds   float64
		frameRate float64
		want      string
	}{
		{"negative", -0.5, 25, "0:00:00"},
		{"zero", 0, 25, "0:00:00"},
		{"half second at 25fps", 0.5, 25, "0:00:12"},
		{"invalid fps falls back to 25", 0.5, 0, "0:00:12"},
		{"with hours", 3601.0, 25, "1:00:01:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := FormatTimeFrames(tt.seconds, tt.frameRate); got != tt.want {
				t.Errorf("FormatTimeFrames(%v, %v) = %q, want %q", tt.seconds, tt.frameRate, got, tt.want)
			}
		})
	}
}
