// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

// Package supervisor builds the suture supervision tree that keeps the
// long-running pieces of the server alive: the WebSocket hub and the HTTP
// server. Each layer restarts independently, so a hub crash does not take
// the API down with it.
package supervisor
