// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

//go:build linux

package affinity

import (
	"math/bits"

	"golang.org/x/sys/unix"
)

// applyThreadMask restricts the calling OS thread to the CPUs in mask.
// Callers must be pinned with runtime.LockOSThread, otherwise the Go
// scheduler may migrate the goroutine to an unrestricted thread.
func applyThreadMask(mask uint64) error {
	if mask == 0 {
		return nil
	}

	var set unix.CPUSet
	for mask != 0 {
		cpu := bits.TrailingZeros64(mask)
		set.Set(cpu)
		mask &^= 1 << cpu
	}
	return unix.SchedSetaffinity(0, &set)
}

// applyProcessMask restricts the thread with the given TID to the CPUs in
// mask. A freshly spawned subprocess has only its main thread, so pinning it
// right after start covers everything it forks later; threads that already
// exist keep their affinity.
func applyProcessMask(pid int, mask uint64) error {
	if mask == 0 {
		return nil
	}

	var set unix.CPUSet
	for mask != 0 {
		cpu := bits.TrailingZeros64(mask)
		set.Set(cpu)
		mask &^= 1 << cpu
	}
	return unix.SchedSetaffinity(pid, &set)
}
