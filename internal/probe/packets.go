// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

package probe

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/tomtom215/bitcurve/internal/logging"
	"github.com/tomtom215/bitcurve/internal/models"
)

// minEstimatedBytes floors the progress estimate so short clips still show
// movement instead of jumping straight to done.
const minEstimatedBytes = 10000

// estimatedPacketsPerSecond and estimatedBytesPerLine size the progress
// estimate: a typical video stream carries around 30 packets per second and
// each CSV line runs around 50 bytes.
const (
	estimatedPacketsPerSecond = 30
	estimatedBytesPerLine     = 50
)

// PacketProgress reports streaming progress: bytes of CSV consumed so far
// against the estimate. readBytes can overshoot the estimate; clamp at the
// caller.
type PacketProgress func(readBytes, estimatedBytes int64)

// Packets extracts every video packet's timestamp and size by streaming
// ffprobe's CSV output. Packets without a usable timestamp are skipped.
// durationHint (seconds, may be 0) only sizes the progress estimate.
func (p *Prober) Packets(ctx context.Context, path string, durationHint float64, progress PacketProgress) ([]models.Packet, error) {
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "packet=pts_time,dts_time,size,flags",
		"-of", "csv=print_section=0",
		path,
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("probe: stdout pipe: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("probe: start ffprobe: %w", err)
	}
	p.pin(cmd)

	estimated := EstimatePacketBytes(durationHint)

	var packets []models.Packet
	var read int64
	skipped := 0

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		read += int64(len(line)) + 1

		pkt, ok := parsePacketLine(line)
		if !ok {
			skipped++
			continue
		}
		packets = append(packets, pkt)

		if progress != nil && len(packets)%4096 == 0 {
			progress(read, estimated)
		}
	}
	scanErr := scanner.Err()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("probe: ffprobe %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}
	if scanErr != nil {
		return nil, fmt.Errorf("probe: read ffprobe output: %w", scanErr)
	}

	if skipped > 0 {
		logging.Debug().Int("skipped", skipped).Int("kept", len(packets)).
			Str("path", path).Msg("packets without timestamps skipped")
	}
	if progress != nil {
		progress(estimated, estimated)
	}
	return packets, nil
}

// EstimatePacketBytes predicts how much CSV ffprobe will emit for a file of
// the given duration.
func EstimatePacketBytes(duration float64) int64 {
	est := int64(duration * estimatedPacketsPerSecond * estimatedBytesPerLine)
	if est < minEstimatedBytes {
		est = minEstimatedBytes
	}
	return est
}

// parsePacketLine parses one CSV row of pts_time,dts_time,size,flags.
// The presentation timestamp is preferred; the decode timestamp covers
// streams that omit pts. Rows with neither, or with an unusable size, are
// dropped.
func parsePacketLine(line string) (models.Packet, bool) {
	fields := strings.Split(line, ",")
	if len(fields) < 3 {
		return models.Packet{}, false
	}

	ts, ok := parseTimestamp(fields[0])
	if !ok {
		ts, ok = parseTimestamp(fields[1])
		if !ok {
			return models.Packet{}, false
		}
	}

	size, err := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64)
	if err != nil || size < 0 {
		return models.Packet{}, false
	}

	return models.Packet{Timestamp: ts, SizeBytes: size}, true
}

// parseTimestamp parses a pts_time/dts_time field, treating ffprobe's "N/A"
// placeholder and negative pre-roll timestamps as absent.
func parseTimestamp(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
