// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

// Package websocket pushes live analysis state to connected browsers.
//
// The hub fans out four kinds of messages: analysis progress (throttled at
// the producer), analysis completion or failure, scheduler placement
// changes, and viewport updates so multiple windows onto the same server
// stay in sync. Clients that stop draining their send queue are dropped
// rather than allowed to stall the broadcast loop.
//
// The hub's event loop uses priority-based selection (shutdown, then client
// lifecycle, then broadcasts) so client state is always settled before a
// message fans out, which keeps delivery deterministic under test.
package websocket
