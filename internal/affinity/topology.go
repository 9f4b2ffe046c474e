// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

package affinity

import (
	"math/bits"
	"runtime"
	"sort"

	"github.com/shirou/gopsutil/v4/cpu"

	"github.com/tomtom215/bitcurve/internal/logging"
)

// maxMaskCPUs is the number of logical CPUs representable in a single mask
// word. CPUs beyond this are left to the OS scheduler.
const maxMaskCPUs = 64

// hybridFrequencyRatio is the clustering threshold for frequency-based
// detection: the CPU is classified as hybrid only when the slowest frequency
// bucket is below 85% of the fastest. This avoids misreading ordinary
// frequency jitter as a core-type split.
const hybridFrequencyRatio = 0.85

// CoreTopology describes the discovered CPU layout and core-group masks.
// It is created once at startup; only the scheduler's target mask changes
// during a run.
type CoreTopology struct {
	// TotalLogical is the number of logical CPUs.
	TotalLogical int `json:"total_logical"`

	// AllMask covers every logical CPU (up to maxMaskCPUs).
	AllMask uint64 `json:"all_mask"`

	// PerformanceMask and EfficiencyMask partition AllMask when IsHybrid.
	PerformanceMask uint64 `json:"performance_mask"`
	EfficiencyMask  uint64 `json:"efficiency_mask"`

	PerformanceCount int `json:"performance_count"`
	EfficiencyCount  int `json:"efficiency_count"`

	// IsHybrid reports whether two distinct core classes were found.
	IsHybrid bool `json:"is_hybrid"`

	// Supported is true only when the topology is hybrid with both groups
	// non-empty and the platform offers affinity control.
	Supported bool `json:"supported"`

	// DetectionMethod names the strategy that classified the cores:
	// "capacity", "frequency", or "none".
	DetectionMethod string `json:"detection_method"`
}

// detector is one topology classification strategy. It fills the performance
// and efficiency masks and reports whether it succeeded.
type detector func(totalLogical int) (performance, efficiency uint64, method string, ok bool)

// Detect queries the OS for the core layout. Classification strategies are
// tried in order (capacity classes first, frequency clustering second) and
// the first success wins. Failures never propagate; the result degrades to a
// uniform topology.
func Detect() CoreTopology {
	topo := uniformTopology(logicalCount())

	for _, d := range platformDetectors() {
		perf, eff, method, ok := d(topo.TotalLogical)
		if !ok {
			continue
		}
		topo.PerformanceMask = perf
		topo.EfficiencyMask = eff
		topo.PerformanceCount = bits.OnesCount64(perf)
		topo.EfficiencyCount = bits.OnesCount64(eff)
		topo.IsHybrid = true
		topo.DetectionMethod = method
		break
	}

	topo.Supported = topo.IsHybrid &&
		topo.PerformanceCount > 0 &&
		topo.EfficiencyCount > 0 &&
		platformSupported()

	if topo.Supported {
		logging.Info().
			Int("performance_cores", topo.PerformanceCount).
			Int("efficiency_cores", topo.EfficiencyCount).
			Str("method", topo.DetectionMethod).
			Msg("hybrid CPU topology detected")
	} else {
		logging.Info().
			Int("logical_cores", topo.TotalLogical).
			Msg("uniform CPU topology")
	}
	return topo
}

// Disabled returns a uniform topology that never steers, for deployments
// that turn affinity control off.
func Disabled() CoreTopology {
	topo := uniformTopology(logicalCount())
	topo.DetectionMethod = "disabled"
	return topo
}

// uniformTopology builds the degraded single-class topology for n logical
// CPUs.
func uniformTopology(n int) CoreTopology {
	if n < 1 {
		n = 1
	}
	return CoreTopology{
		TotalLogical:    n,
		AllMask:         maskForFirst(n),
		DetectionMethod: "none",
	}
}

// logicalCount returns the logical CPU count, preferring the OS view over
// the Go runtime's (GOMAXPROCS may be capped by cgroups).
func logicalCount() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// maskForFirst returns a mask with the first n CPU bits set, capped at
// maxMaskCPUs.
func maskForFirst(n int) uint64 {
	if n >= maxMaskCPUs {
		return ^uint64(0)
	}
	return (uint64(1) << n) - 1
}

// classifyByFrequency splits per-CPU maximum frequencies into buckets and
// derives the efficiency/performance masks. The lowest-frequency bucket
// becomes the efficiency group only when its frequency is below
// hybridFrequencyRatio of the highest bucket.
func classifyByFrequency(freqs []float64) (performance, efficiency uint64, ok bool) {
	buckets := make(map[float64][]int)
	for i, f := range freqs {
		if i >= maxMaskCPUs || f <= 0 {
			continue
		}
		buckets[f] = append(buckets[f], i)
	}
	if len(buckets) < 2 {
		return 0, 0, false
	}

	sorted := make([]float64, 0, len(buckets))
	for f := range buckets {
		sorted = append(sorted, f)
	}
	sort.Float64s(sorted)

	lowest, highest := sorted[0], sorted[len(sorted)-1]
	if lowest/highest >= hybridFrequencyRatio {
		return 0, 0, false
	}

	for _, idx := range buckets[lowest] {
		efficiency |= 1 << idx
	}
	// Everything above the lowest bucket counts as a performance core.
	for _, f := range sorted[1:] {
		for _, idx := range buckets[f] {
			performance |= 1 << idx
		}
	}
	return performance, efficiency, true
}

// gopsutilFrequencies reads per-CPU advertised frequencies in MHz.
// Used as the portable source for frequency clustering.
func gopsutilFrequencies(totalLogical int) []float64 {
	infos, err := cpu.Info()
	if err != nil || len(infos) == 0 {
		return nil
	}

	freqs := make([]float64, totalLogical)
	for i, info := range infos {
		idx := i
		if int(info.CPU) >= 0 && int(info.CPU) < totalLogical {
			idx = int(info.CPU)
		}
		if idx < totalLogical {
			freqs[idx] = info.Mhz
		}
	}
	return freqs
}
