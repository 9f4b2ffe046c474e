// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tomtom215/bitcurve/internal/affinity"
	"github.com/tomtom215/bitcurve/internal/logging"
	"github.com/tomtom215/bitcurve/internal/metrics"
	"github.com/tomtom215/bitcurve/internal/models"
)

// MinParallelPoints is the series length below which chunking overhead
// outweighs the parallel speedup and the engine computes serially.
const MinParallelPoints = 50

// ctxCheckInterval is how many samples a serial loop computes between
// context checks.
const ctxCheckInterval = 1024

// ErrInvalidWindow is returned when the window duration is not positive.
var ErrInvalidWindow = errors.New("engine: window duration must be positive")

// ProgressFunc receives compute progress as samples are produced. done and
// total are sample counts. Implementations must be safe for concurrent calls.
type ProgressFunc func(done, total int)

// Engine computes windowed bitrate series. It is safe for concurrent use;
// each Compute call runs its own worker set.
type Engine struct {
	sched *affinity.Scheduler
}

// New creates an engine that sizes and steers its workers through the given
// scheduler.
func New(sched *affinity.Scheduler) *Engine {
	return &Engine{sched: sched}
}

// Compute builds the bitrate series for the given packet trace.
//
// window is the aggregation window in seconds; samples are spaced window/2
// apart. duration is the container-reported duration in seconds; the series
// extends to whichever is later, duration or the last packet timestamp, so
// streams that outrun their header metadata are still fully covered. Windows
// containing no packets produce zero-bitrate samples; a trace with no packets
// at all yields an empty series regardless of duration.
//
// progress may be nil.
func (e *Engine) Compute(ctx context.Context, packets []models.Packet, window, duration float64, progress ProgressFunc) (models.Series, error) {
	if window <= 0 {
		return nil, ErrInvalidWindow
	}

	packets = preparePackets(packets)
	// No packets means no curve, even when the container declares a
	// duration.
	if len(packets) == 0 {
		return models.Series{}, nil
	}

	horizon := duration
	if n := len(packets); n > 0 && packets[n-1].Timestamp > horizon {
		horizon = packets[n-1].Timestamp
	}
	if horizon <= 0 {
		return models.Series{}, nil
	}

	step := window / 2
	total := int(horizon/step) + 1

	workers := e.sched.WorkerBudget()
	if total < MinParallelPoints || workers <= 1 {
		return e.computeSerial(ctx, packets, window, total, progress)
	}

	series, err := e.computeParallel(ctx, packets, window, total, workers, progress)
	if err == nil {
		return series, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	logging.Warn().Err(err).Msg("parallel compute failed, falling back to serial")
	metrics.ComputeFallbacks.Inc()
	return e.computeSerial(ctx, packets, window, total, progress)
}

// computeSerial fills the whole series in one pass.
func (e *Engine) computeSerial(ctx context.Context, packets []models.Packet, window float64, total int, progress ProgressFunc) (models.Series, error) {
	series := make(models.Series, 0, total)
	err := computeChunk(packets, window, 0, total, nil, func(s models.Sample) error {
		series = append(series, s)
		if len(series)%ctxCheckInterval == 0 {
			if progress != nil {
				progress(len(series), total)
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if progress != nil {
		progress(total, total)
	}
	return series, nil
}

// computeParallel splits the sample range into one contiguous chunk per
// worker. Workers pin to OS threads and follow the scheduler's target mask
// while they run. The first failure poisons the whole attempt.
func (e *Engine) computeParallel(ctx context.Context, packets []models.Packet, window float64, total, workers int, progress ProgressFunc) (models.Series, error) {
	chunkSize := (total + workers - 1) / workers

	chunks := make([]models.Series, workers)
	var done atomic.Int64
	var firstErr atomic.Value

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > total {
			end = total
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					firstErr.CompareAndSwap(nil, fmt.Errorf("engine: worker %d panicked: %v", w, r))
				}
			}()

			hook := e.sched.NewWorkerHook()
			hook.Start()
			defer hook.Stop()

			chunk := make(models.Series, 0, end-start)
			err := computeChunk(packets, window, start, end, hook, func(s models.Sample) error {
				chunk = append(chunk, s)
				if n := done.Add(1); progress != nil && n%ctxCheckInterval == 0 {
					progress(int(n), total)
				}
				return ctx.Err()
			})
			if err != nil {
				firstErr.CompareAndSwap(nil, err)
				return
			}
			chunks[w] = chunk
		}(w, start, end)
	}
	wg.Wait()

	if err, ok := firstErr.Load().(error); ok && err != nil {
		return nil, err
	}

	series := make(models.Series, 0, total)
	for _, chunk := range chunks {
		series = append(series, chunk...)
	}
	series.SortByTime()

	if progress != nil {
		progress(total, total)
	}
	return series, nil
}

// computeChunk emits samples for the half-open point range [startPoint,
// endPoint). Point i covers the window [i*step, i*step+window) and samples at
// the window midpoint. Packets must be sorted; the window sum is maintained
// with two sliding indices so each packet is added and removed exactly once
// per chunk.
func computeChunk(packets []models.Packet, window float64, startPoint, endPoint int, hook *affinity.WorkerHook, emit func(models.Sample) error) error {
	step := window / 2

	startTime := float64(startPoint) * step
	lo := sort.Search(len(packets), func(i int) bool {
		return packets[i].Timestamp >= startTime
	})
	hi := lo

	var sum int64
	for i := startPoint; i < endPoint; i++ {
		t := float64(i) * step

		for lo < len(packets) && packets[lo].Timestamp < t {
			sum -= packets[lo].SizeBytes
			lo++
		}
		if hi < lo {
			hi = lo
			sum = 0
		}
		for hi < len(packets) && packets[hi].Timestamp < t+window {
			sum += packets[hi].SizeBytes
			hi++
		}

		sample := models.Sample{
			Time:        t + window/2,
			BitrateKbps: float64(sum) * 8 / window / 1000,
		}
		if err := emit(sample); err != nil {
			return err
		}
		if hook != nil {
			hook.Tick()
		}
	}
	return nil
}

// preparePackets returns packets ordered by timestamp with malformed entries
// (NaN or negative timestamp, negative size) dropped. The input is copied
// only when a fix is needed.
func preparePackets(packets []models.Packet) []models.Packet {
	clean := true
	for i, p := range packets {
		if !validPacket(p) || (i > 0 && p.Timestamp < packets[i-1].Timestamp) {
			clean = false
			break
		}
	}
	if clean {
		return packets
	}

	fixed := make([]models.Packet, 0, len(packets))
	for _, p := range packets {
		if validPacket(p) {
			fixed = append(fixed, p)
		}
	}
	sort.Slice(fixed, func(i, j int) bool {
		return fixed[i].Timestamp < fixed[j].Timestamp
	})
	return fixed
}

func validPacket(p models.Packet) bool {
	return !math.IsNaN(p.Timestamp) && p.Timestamp >= 0 && p.SizeBytes >= 0
}
