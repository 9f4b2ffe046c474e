// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

package affinity

import (
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/tomtom215/bitcurve/internal/logging"
)

// MaskPollInterval is how many processed samples a worker handles between
// re-reads of the shared target mask. It bounds how stale a worker's applied
// affinity can be after a steering change.
const MaskPollInterval = 200

// State is the scheduler's placement state.
type State string

const (
	// StateAllCores places work on every logical CPU.
	StateAllCores State = "all_cores"

	// StateEfficiencyOnly restricts work to the efficiency core group.
	StateEfficiencyOnly State = "efficiency_only"
)

// Scheduler owns the shared target mask and the placement state machine.
// State transitions are driven by three inputs reported by the host
// application: background/foreground, eco-mode opt-in, and whether a
// computation is currently live.
//
// The zero Scheduler is not usable; construct with NewScheduler.
type Scheduler struct {
	topo CoreTopology

	// target is the mask every worker should currently run under. Written
	// by reconcile, read lock-free by worker hooks.
	target atomic.Uint64

	// apply restricts the calling OS thread to a mask. Injectable so the
	// state machine is testable without syscalls.
	apply func(mask uint64) error

	// applyProcess restricts a whole process to a mask.
	applyProcess func(pid int, mask uint64) error

	mu            sync.Mutex
	state         State
	background    bool
	ecoOptIn      bool
	computeActive bool
	onStateChange func(State)
}

// NewScheduler creates a scheduler for the given topology. On unsupported
// topologies every steering call is accepted but the target mask never
// leaves AllMask.
func NewScheduler(topo CoreTopology) *Scheduler {
	s := &Scheduler{
		topo:         topo,
		apply:        applyThreadMask,
		applyProcess: applyProcessMask,
		state:        StateAllCores,
	}
	s.target.Store(topo.AllMask)
	return s
}

// Topology returns the topology the scheduler was built with.
func (s *Scheduler) Topology() CoreTopology {
	return s.topo
}

// CurrentState returns the placement state.
func (s *Scheduler) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TargetMask returns the mask workers should currently apply.
func (s *Scheduler) TargetMask() uint64 {
	return s.target.Load()
}

// OnStateChange registers a callback invoked after every state transition.
// The callback runs with the scheduler lock held; it must not call back into
// the scheduler.
func (s *Scheduler) OnStateChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStateChange = fn
}

// SetBackground records that the host application moved to the background
// (true) or foreground (false). Returning to the foreground always restores
// all cores, regardless of opt-in.
func (s *Scheduler) SetBackground(background bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.background = background
	s.reconcile()
}

// SetEcoOptIn records whether the user allows efficiency-only placement.
// Turning opt-in off while backgrounded releases the restriction immediately.
func (s *Scheduler) SetEcoOptIn(optIn bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ecoOptIn = optIn
	s.reconcile()
}

// SetComputeActive records whether an analysis computation is live. Steering
// only matters while something is running; an idle app keeps all cores.
func (s *Scheduler) SetComputeActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.computeActive = active
	s.reconcile()
}

// EcoOptIn reports the current opt-in flag.
func (s *Scheduler) EcoOptIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ecoOptIn
}

// Background reports the current background flag.
func (s *Scheduler) Background() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.background
}

// reconcile recomputes the state from the three inputs and publishes the
// matching mask. Caller holds s.mu.
func (s *Scheduler) reconcile() {
	next := StateAllCores
	if s.topo.Supported && s.background && s.ecoOptIn && s.computeActive {
		next = StateEfficiencyOnly
	}
	if next == s.state {
		return
	}
	s.state = next

	mask := s.topo.AllMask
	if next == StateEfficiencyOnly {
		mask = s.topo.EfficiencyMask
	}
	s.target.Store(mask)

	// Steer this process immediately; workers catch up at their next mask
	// poll. Best-effort.
	if err := s.applyProcess(os.Getpid(), mask); err != nil {
		logging.Debug().Err(err).Uint64("mask", mask).Msg("process affinity not applied")
	}

	logging.Info().
		Str("state", string(next)).
		Bool("background", s.background).
		Bool("eco_opt_in", s.ecoOptIn).
		Bool("compute_active", s.computeActive).
		Msg("scheduler state changed")

	if s.onStateChange != nil {
		s.onStateChange(next)
	}
}

// WorkerBudget returns how many compute workers a parallel run should use:
// the performance core count on hybrid hosts, otherwise every logical core.
// Never less than one.
func (s *Scheduler) WorkerBudget() int {
	n := s.topo.TotalLogical
	if s.topo.Supported {
		n = s.topo.PerformanceCount
	}
	if n < 1 {
		n = 1
	}
	return n
}

// PinProcess applies the current target mask to an already-started process,
// typically a media subprocess right after spawn. Best-effort.
func (s *Scheduler) PinProcess(pid int) {
	if !s.topo.Supported {
		return
	}
	if err := s.applyProcess(pid, s.target.Load()); err != nil {
		logging.Debug().Err(err).Int("pid", pid).Msg("process affinity not applied")
	}
}

// WorkerHook gives one compute worker its view of the shared target mask.
// Usage inside the worker goroutine:
//
//	hook := sched.NewWorkerHook()
//	hook.Start()
//	defer hook.Stop()
//	for ... { hook.Tick() }
type WorkerHook struct {
	sched   *Scheduler
	applied uint64
	ticks   int
	locked  bool
}

// NewWorkerHook creates a hook bound to this scheduler. One hook per worker
// goroutine; hooks are not safe for concurrent use.
func (s *Scheduler) NewWorkerHook() *WorkerHook {
	return &WorkerHook{sched: s}
}

// Start pins the calling goroutine to its OS thread and applies the current
// target mask. Must be called from the worker goroutine itself.
func (h *WorkerHook) Start() {
	if !h.sched.topo.Supported {
		return
	}
	runtime.LockOSThread()
	h.locked = true
	h.reapply()
}

// Tick advances the sample counter and re-applies the target mask every
// MaskPollInterval samples if it changed.
func (h *WorkerHook) Tick() {
	if !h.locked {
		return
	}
	h.ticks++
	if h.ticks < MaskPollInterval {
		return
	}
	h.ticks = 0
	if h.sched.target.Load() != h.applied {
		h.reapply()
	}
}

// Stop releases the OS thread lock.
func (h *WorkerHook) Stop() {
	if h.locked {
		runtime.UnlockOSThread()
		h.locked = false
	}
}

func (h *WorkerHook) reapply() {
	mask := h.sched.target.Load()
	if err := h.sched.apply(mask); err != nil {
		logging.Debug().Err(err).Uint64("mask", mask).Msg("thread affinity not applied")
		h.applied = mask
		return
	}
	h.applied = mask
}
