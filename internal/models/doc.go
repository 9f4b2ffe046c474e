// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

// Package models defines the shared data model for Bitcurve.
//
// The core pipeline types flow in one direction:
//
//	Packet (probe output) -> Series of Sample (engine output) -> DecimatedSeries (view artifact)
//
// A Series is created once per analysis run and replaced wholesale when the
// source file or window size changes; it is never partially mutated. Sample
// times are non-decreasing, which is what makes binary-search range queries
// in the viewport package valid.
//
// Viewport and CoreTopology are the two pieces of live session state: the
// viewport is mutated only by explicit zoom/pan/reset operations, and the
// topology is created once at startup with only its target mask changing
// afterwards.
package models
