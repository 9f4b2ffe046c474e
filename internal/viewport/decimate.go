// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

package viewport

import "github.com/tomtom215/bitcurve/internal/models"

// OverviewBudget is the sample budget for the always-available full-range
// overview curve.
const OverviewBudget = 400

// Dynamic decimation budgets by visible range. A wide view tolerates heavy
// decimation; a tight zoom gets more points so short spikes keep their shape.
const (
	budgetWide   = 800  // visible range > 80% of the timeline
	budgetMedium = 1200 // visible range > 50%
	budgetNarrow = 1500 // anything tighter
)

// DynamicBudget returns the decimation budget for a visible range expressed
// as a fraction of the full timeline.
func DynamicBudget(viewRange float64) int {
	switch {
	case viewRange > 0.8:
		return budgetWide
	case viewRange > 0.5:
		return budgetMedium
	default:
		return budgetNarrow
	}
}

// Decimate reduces series to at most budget samples while preserving peaks.
//
// The series is split into budget equal buckets with floating-point
// boundaries floored to sample indices, and the highest-bitrate sample in
// each bucket survives. The first and last samples are always kept verbatim
// so the curve's endpoints never drift, and the result is re-sorted because
// that substitution can disturb bucket order. Series already within budget
// are returned unchanged.
func Decimate(series models.Series, budget int) models.DecimatedSeries {
	if budget <= 0 || len(series) <= budget {
		return series
	}

	bucketWidth := float64(len(series)) / float64(budget)
	out := make(models.DecimatedSeries, 0, budget)

	for b := 0; b < budget; b++ {
		start := int(float64(b) * bucketWidth)
		end := int(float64(b+1) * bucketWidth)
		if end > len(series) {
			end = len(series)
		}
		if start >= end {
			continue
		}

		peak := start
		for i := start + 1; i < end; i++ {
			if series[i].BitrateKbps > series[peak].BitrateKbps {
				peak = i
			}
		}
		out = append(out, series[peak])
	}

	if len(out) > 0 {
		out[0] = series[0]
		out[len(out)-1] = series[len(series)-1]
	}
	out.SortByTime()
	return out
}
