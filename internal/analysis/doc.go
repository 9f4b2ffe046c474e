// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

// Package analysis orchestrates a full bitrate analysis run: probe the file,
// stream out its packets, compute the windowed series, and publish the
// result as a queryable viewport index.
//
// One run at a time. A second start while a run is live is rejected with
// ErrAnalysisInProgress rather than queued; the UI drives this and a queue
// would only hide the rejection from the user. Changing the aggregation
// window reuses the extracted packets, so only the compute stage re-runs.
//
// Progress events fan out through the websocket hub, throttled with a rate
// limiter so a fast extraction does not flood slow clients.
package analysis
