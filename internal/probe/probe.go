// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

package probe

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/tomtom215/bitcurve/internal/affinity"
)

// ErrBinaryNotFound is returned when neither a configured path nor PATH
// lookup yields a usable ffprobe/ffmpeg binary.
var ErrBinaryNotFound = errors.New("probe: ffprobe/ffmpeg not found")

// Prober runs ffprobe and ffmpeg against media files. Safe for concurrent
// use; every call spawns its own process.
type Prober struct {
	ffprobePath string
	ffmpegPath  string
	sched       *affinity.Scheduler
}

// Option configures a Prober.
type Option func(*Prober)

// WithFFprobePath overrides PATH discovery for ffprobe.
func WithFFprobePath(path string) Option {
	return func(p *Prober) { p.ffprobePath = path }
}

// WithFFmpegPath overrides PATH discovery for ffmpeg.
func WithFFmpegPath(path string) Option {
	return func(p *Prober) { p.ffmpegPath = path }
}

// New discovers the media binaries and returns a ready Prober. ffprobe is
// required; ffmpeg is optional and only needed for the duration fallback on
// files with broken container metadata.
func New(sched *affinity.Scheduler, opts ...Option) (*Prober, error) {
	p := &Prober{sched: sched}
	for _, opt := range opts {
		opt(p)
	}

	if p.ffprobePath == "" {
		path, err := lookupBinary("ffprobe")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBinaryNotFound, err)
		}
		p.ffprobePath = path
	}
	if p.ffmpegPath == "" {
		if path, err := lookupBinary("ffmpeg"); err == nil {
			p.ffmpegPath = path
		}
	}
	return p, nil
}

// lookupBinary prefers a bundled binary in lib/ next to the executable,
// then falls back to PATH.
func lookupBinary(name string) (string, error) {
	if execPath, err := os.Executable(); err == nil {
		bundled := filepath.Join(filepath.Dir(execPath), "lib", name)
		if info, err := os.Stat(bundled); err == nil && !info.IsDir() {
			return bundled, nil
		}
	}
	return exec.LookPath(name)
}

// pin applies the scheduler's current target mask to a started process.
func (p *Prober) pin(cmd *exec.Cmd) {
	if p.sched != nil && cmd.Process != nil {
		p.sched.PinProcess(cmd.Process.Pid)
	}
}
