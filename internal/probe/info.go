// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

package probe

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/bitcurve/internal/logging"
	"github.com/tomtom215/bitcurve/internal/models"
)

// durationPattern matches ffmpeg's stderr banner, e.g. "Duration: 01:23:45.67".
var durationPattern = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+\.?\d*)`)

// ffprobeOutput mirrors the subset of `ffprobe -of json` we read.
type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

type ffprobeStream struct {
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	Disposition  struct {
		AttachedPic int `json:"attached_pic"`
	} `json:"disposition"`
}

// selectVideoStream picks the first real video stream, skipping embedded
// cover art (attached_pic disposition).
func selectVideoStream(streams []ffprobeStream) (ffprobeStream, bool) {
	for _, s := range streams {
		if s.Disposition.AttachedPic == 0 {
			return s, true
		}
	}
	return ffprobeStream{}, false
}

// VideoInfo probes the file's first video stream and container metadata.
// When the container reports no usable duration, a decode pass through
// ffmpeg recovers it from the stream itself.
func (p *Prober) VideoInfo(ctx context.Context, path string) (models.VideoInfo, error) {
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-select_streams", "v",
		"-show_entries", "stream=codec_name,width,height,r_frame_rate,avg_frame_rate:stream_disposition=attached_pic",
		"-show_entries", "format=duration,size,bit_rate",
		"-of", "json",
		path,
	)

	out, err := p.runPinned(cmd)
	if err != nil {
		return models.VideoInfo{}, fmt.Errorf("probe: ffprobe %s: %w", path, err)
	}

	var raw ffprobeOutput
	if err := json.Unmarshal(out, &raw); err != nil {
		return models.VideoInfo{}, fmt.Errorf("probe: parse ffprobe output for %s: %w", path, err)
	}
	stream, ok := selectVideoStream(raw.Streams)
	if !ok {
		return models.VideoInfo{}, fmt.Errorf("probe: no video stream in %s", path)
	}
	info := models.VideoInfo{
		Codec:     stream.CodecName,
		Width:     stream.Width,
		Height:    stream.Height,
		FrameRate: parseFrameRate(stream.RFrameRate, stream.AvgFrameRate),
		Duration:  parseFloat(raw.Format.Duration),
		SizeBytes: parseInt(raw.Format.Size),
		BitRate:   parseInt(raw.Format.BitRate),
	}

	if info.Duration <= 0 && p.ffmpegPath != "" {
		if d, ok := p.durationFromDecode(ctx, path); ok {
			logging.Debug().Str("path", path).Float64("duration", d).
				Msg("recovered duration via ffmpeg decode")
			info.Duration = d
		}
	}
	return info, nil
}

// durationFromDecode runs a null decode and scrapes the duration banner from
// stderr. Slow but only reached for files with broken container metadata.
func (p *Prober) durationFromDecode(ctx context.Context, path string) (float64, bool) {
	cmd := exec.CommandContext(ctx, p.ffmpegPath, "-i", path, "-f", "null", "-")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return 0, false
	}
	p.pin(cmd)
	// ffmpeg exits non-zero on a null sink; the banner is still printed.
	_ = cmd.Wait()

	return parseDurationBanner(stderr.String())
}

// runPinned starts the command, applies the affinity mask, and collects
// stdout.
func (p *Prober) runPinned(cmd *exec.Cmd) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p.pin(cmd)
	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// parseFrameRate resolves ffprobe's rational frame rates ("30000/1001").
// The real rate is preferred, the average is the fallback, and anything
// unusable becomes the historical video default of 25 fps.
func parseFrameRate(rate, avgRate string) float64 {
	for _, s := range []string{rate, avgRate} {
		if fps := parseRational(s); fps > 0 {
			return fps
		}
	}
	return models.DefaultFrameRate
}

// parseRational evaluates "num/den" or a bare number. Returns 0 when
// unparseable or non-positive.
func parseRational(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, errN := strconv.ParseFloat(num, 64)
		d, errD := strconv.ParseFloat(den, 64)
		if errN != nil || errD != nil || d == 0 {
			return 0
		}
		if v := n / d; v > 0 {
			return v
		}
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0
	}
	return v
}

// parseDurationBanner extracts the duration in seconds from ffmpeg stderr
// output.
func parseDurationBanner(stderr string) (float64, bool) {
	m := durationPattern.FindStringSubmatch(stderr)
	if m == nil {
		return 0, false
	}
	hours, _ := strconv.ParseFloat(m[1], 64)
	minutes, _ := strconv.ParseFloat(m[2], 64)
	seconds, _ := strconv.ParseFloat(m[3], 64)
	return hours*3600 + minutes*60 + seconds, true
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(s string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
