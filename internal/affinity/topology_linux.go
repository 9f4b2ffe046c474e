// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

//go:build linux

package affinity

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// sysCPURoot is the sysfs CPU directory. Overridable in tests.
var sysCPURoot = "/sys/devices/system/cpu"

// platformDetectors returns the Linux classification chain: scheduler
// capacity classes first (authoritative on ARM big.LITTLE and recent x86
// hybrid kernels), then max-frequency clustering from cpufreq, then the
// portable gopsutil frequency fallback.
func platformDetectors() []detector {
	return []detector{
		detectByCapacity,
		detectByMaxFrequency,
		func(total int) (uint64, uint64, string, bool) {
			perf, eff, ok := classifyByFrequency(gopsutilFrequencies(total))
			return perf, eff, "frequency", ok
		},
	}
}

// platformSupported reports whether affinity masks can actually be applied.
func platformSupported() bool { return true }

// detectByCapacity classifies cores from the kernel's cpu_capacity values.
// Capacity is normalized (the biggest core class is 1024), so any CPU with
// less than the maximum capacity is an efficiency core.
func detectByCapacity(totalLogical int) (performance, efficiency uint64, method string, ok bool) {
	caps := readPerCPUValues(totalLogical, "cpu_capacity")
	if caps == nil {
		return 0, 0, "", false
	}

	maxCap := 0.0
	distinct := make(map[float64]struct{})
	for _, c := range caps {
		if c <= 0 {
			return 0, 0, "", false
		}
		distinct[c] = struct{}{}
		if c > maxCap {
			maxCap = c
		}
	}
	if len(distinct) < 2 {
		return 0, 0, "", false
	}

	for i, c := range caps {
		if i >= maxMaskCPUs {
			break
		}
		if c < maxCap {
			efficiency |= 1 << i
		} else {
			performance |= 1 << i
		}
	}
	return performance, efficiency, "capacity", true
}

// detectByMaxFrequency classifies cores by clustering cpufreq's
// cpuinfo_max_freq values.
func detectByMaxFrequency(totalLogical int) (performance, efficiency uint64, method string, ok bool) {
	freqs := readPerCPUValues(totalLogical, "cpufreq/cpuinfo_max_freq")
	if freqs == nil {
		return 0, 0, "", false
	}
	performance, efficiency, ok = classifyByFrequency(freqs)
	return performance, efficiency, "frequency", ok
}

// readPerCPUValues reads one numeric sysfs attribute for every logical CPU.
// Returns nil if any CPU is missing the attribute, so a detector either sees
// the whole picture or nothing.
func readPerCPUValues(totalLogical int, relPath string) []float64 {
	values := make([]float64, totalLogical)
	for i := 0; i < totalLogical; i++ {
		path := fmt.Sprintf("%s/cpu%d/%s", sysCPURoot, i, relPath)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
		if err != nil {
			return nil
		}
		values[i] = v
	}
	return values
}
