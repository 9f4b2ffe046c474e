// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

//go:build !linux

package affinity

// platformDetectors returns the portable classification chain. Frequency
// clustering still runs so the topology is reported accurately, but without
// an affinity syscall the scheduler stays a no-op.
func platformDetectors() []detector {
	return []detector{
		func(total int) (uint64, uint64, string, bool) {
			perf, eff, ok := classifyByFrequency(gopsutilFrequencies(total))
			return perf, eff, "frequency", ok
		},
	}
}

// platformSupported reports whether affinity masks can actually be applied.
func platformSupported() bool { return false }
