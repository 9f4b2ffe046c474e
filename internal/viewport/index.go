// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

package viewport

import (
	"sort"
	"sync"

	"github.com/tomtom215/bitcurve/internal/models"
)

// Index answers range and overview queries over one immutable, time-sorted
// bitrate series. Safe for concurrent readers.
type Index struct {
	series         models.Series
	maxTime        float64
	overviewBudget int

	overviewOnce sync.Once
	overview     models.DecimatedSeries
}

// NewIndex builds an index over the series. The series must be sorted by
// time; unsorted input is sorted in place here, before any reader exists.
func NewIndex(series models.Series) *Index {
	return NewIndexWithBudget(series, OverviewBudget)
}

// NewIndexWithBudget builds an index with a configured overview budget.
// Budgets below one fall back to OverviewBudget.
func NewIndexWithBudget(series models.Series, budget int) *Index {
	if !series.IsSorted() {
		series.SortByTime()
	}
	if budget < 1 {
		budget = OverviewBudget
	}
	return &Index{
		series:         series,
		maxTime:        series.MaxTime(),
		overviewBudget: budget,
	}
}

// Len returns the number of samples in the full series.
func (ix *Index) Len() int { return len(ix.series) }

// MaxTime returns the timestamp of the last sample, or 0 for an empty series.
func (ix *Index) MaxTime() float64 { return ix.maxTime }

// Full returns the entire undecimated series.
func (ix *Index) Full() models.Series { return ix.series }

// Overview returns the full-range curve decimated to the overview budget.
// The result is computed once and cached; it backs the minimap under the
// main chart, which is redrawn constantly while panning.
func (ix *Index) Overview() models.DecimatedSeries {
	ix.overviewOnce.Do(func() {
		ix.overview = Decimate(ix.series, ix.overviewBudget)
	})
	return ix.overview
}

// Range returns the samples within [startTime, endTime], located by binary
// search and widened by one sample on each side so the curve enters and
// leaves the view without a gap at the edges. A range entirely outside the
// series is empty, not widened onto a neighbor.
func (ix *Index) Range(startTime, endTime float64) models.Series {
	if len(ix.series) == 0 || endTime < startTime {
		return models.Series{}
	}

	lo := sort.Search(len(ix.series), func(i int) bool {
		return ix.series[i].Time >= startTime
	})
	hi := sort.Search(len(ix.series), func(i int) bool {
		return ix.series[i].Time > endTime
	})
	if lo == len(ix.series) || hi == 0 {
		return models.Series{}
	}

	if lo > 0 {
		lo--
	}
	if hi < len(ix.series) {
		hi++
	}
	return ix.series[lo:hi]
}

// Visible returns the samples inside the viewport, decimated to the budget
// for the viewport's width.
func (ix *Index) Visible(vp models.Viewport) models.DecimatedSeries {
	start, end := vp.TimeBounds(ix.maxTime)
	return Decimate(ix.Range(start, end), DynamicBudget(vp.Range()))
}
