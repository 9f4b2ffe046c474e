// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

package affinity

import (
	"os"
	"sync"
	"testing"
)

// hybridTopo is an 8P+4E layout used by the state machine tests.
func hybridTopo() CoreTopology {
	return CoreTopology{
		TotalLogical:     12,
		AllMask:          0xFFF,
		PerformanceMask:  0x0FF,
		EfficiencyMask:   0xF00,
		PerformanceCount: 8,
		EfficiencyCount:  4,
		IsHybrid:         true,
		Supported:        true,
		DetectionMethod:  "frequency",
	}
}

// newTestScheduler returns a scheduler whose mask applications are recorded
// instead of hitting the OS.
func newTestScheduler(topo CoreTopology) (*Scheduler, *[]uint64) {
	s := NewScheduler(topo)
	var mu sync.Mutex
	applied := &[]uint64{}
	s.apply = func(mask uint64) error {
		mu.Lock()
		defer mu.Unlock()
		*applied = append(*applied, mask)
		return nil
	}
	s.applyProcess = func(_ int, mask uint64) error {
		mu.Lock()
		defer mu.Unlock()
		*applied = append(*applied, mask)
		return nil
	}
	return s, applied
}

func TestScheduler_StateMachine(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler(hybridTopo())

	if s.CurrentState() != StateAllCores {
		t.Fatalf("initial state = %v, want all_cores", s.CurrentState())
	}

	// Background alone is not enough.
	s.SetBackground(true)
	if s.CurrentState() != StateAllCores {
		t.Errorf("background without opt-in: state = %v, want all_cores", s.CurrentState())
	}

	// Opt-in alone is not enough either.
	s.SetEcoOptIn(true)
	if s.CurrentState() != StateAllCores {
		t.Errorf("no active compute: state = %v, want all_cores", s.CurrentState())
	}

	// All three inputs present: restrict.
	s.SetComputeActive(true)
	if s.CurrentState() != StateEfficiencyOnly {
		t.Errorf("background+opt-in+active: state = %v, want efficiency_only", s.CurrentState())
	}
	if s.TargetMask() != 0xF00 {
		t.Errorf("target mask = %x, want efficiency mask f00", s.TargetMask())
	}

	// Foreground restores all cores unconditionally.
	s.SetBackground(false)
	if s.CurrentState() != StateAllCores {
		t.Errorf("foreground: state = %v, want all_cores", s.CurrentState())
	}
	if s.TargetMask() != 0xFFF {
		t.Errorf("target mask = %x, want all mask fff", s.TargetMask())
	}

	// Opt-out while backgrounded releases the restriction.
	s.SetBackground(true)
	if s.CurrentState() != StateEfficiencyOnly {
		t.Fatalf("re-background: state = %v, want efficiency_only", s.CurrentState())
	}
	s.SetEcoOptIn(false)
	if s.CurrentState() != StateAllCores {
		t.Errorf("opt-out while backgrounded: state = %v, want all_cores", s.CurrentState())
	}

	// Compute finishing while restricted also releases.
	s.SetEcoOptIn(true)
	if s.CurrentState() != StateEfficiencyOnly {
		t.Fatalf("re-opt-in: state = %v, want efficiency_only", s.CurrentState())
	}
	s.SetComputeActive(false)
	if s.CurrentState() != StateAllCores {
		t.Errorf("compute finished: state = %v, want all_cores", s.CurrentState())
	}
}

func TestScheduler_UnsupportedTopologyNeverRestricts(t *testing.T) {
	t.Parallel()

	topo := uniformTopology(8)
	s, _ := newTestScheduler(topo)

	s.SetEcoOptIn(true)
	s.SetComputeActive(true)
	s.SetBackground(true)

	if s.CurrentState() != StateAllCores {
		t.Errorf("state = %v, want all_cores on uniform topology", s.CurrentState())
	}
	if s.TargetMask() != topo.AllMask {
		t.Errorf("target mask = %x, want %x", s.TargetMask(), topo.AllMask)
	}
}

func TestScheduler_OnStateChange(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler(hybridTopo())

	var transitions []State
	s.OnStateChange(func(st State) { transitions = append(transitions, st) })

	s.SetEcoOptIn(true)
	s.SetComputeActive(true)
	s.SetBackground(true)  // -> efficiency_only
	s.SetBackground(true)  // no-op, no duplicate notification
	s.SetBackground(false) // -> all_cores

	want := []State{StateEfficiencyOnly, StateAllCores}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestScheduler_WorkerBudget(t *testing.T) {
	t.Parallel()

	if got := NewScheduler(hybridTopo()).WorkerBudget(); got != 8 {
		t.Errorf("hybrid WorkerBudget = %d, want performance count 8", got)
	}
	if got := NewScheduler(uniformTopology(6)).WorkerBudget(); got != 6 {
		t.Errorf("uniform WorkerBudget = %d, want 6", got)
	}
	if got := NewScheduler(uniformTopology(0)).WorkerBudget(); got != 1 {
		t.Errorf("degenerate WorkerBudget = %d, want 1", got)
	}
}

func TestWorkerHook_ReappliesAfterSteering(t *testing.T) {
	t.Parallel()

	s, applied := newTestScheduler(hybridTopo())
	s.SetEcoOptIn(true)
	s.SetComputeActive(true)

	hook := s.NewWorkerHook()
	hook.Start()
	defer hook.Stop()

	if len(*applied) != 1 || (*applied)[0] != 0xFFF {
		t.Fatalf("Start applied %v, want [fff]", *applied)
	}

	// Steering change mid-computation: the hook picks it up within one
	// polling interval.
	s.SetBackground(true)
	for i := 0; i < MaskPollInterval; i++ {
		hook.Tick()
	}
	if got := (*applied)[len(*applied)-1]; got != 0xF00 {
		t.Errorf("last applied mask = %x, want efficiency mask f00", got)
	}

	// Unchanged mask does not re-apply.
	before := len(*applied)
	for i := 0; i < 3*MaskPollInterval; i++ {
		hook.Tick()
	}
	if len(*applied) != before {
		t.Errorf("hook re-applied an unchanged mask: %d extra calls", len(*applied)-before)
	}

	// Restore is picked up too.
	s.SetBackground(false)
	for i := 0; i < MaskPollInterval; i++ {
		hook.Tick()
	}
	if got := (*applied)[len(*applied)-1]; got != 0xFFF {
		t.Errorf("last applied mask = %x, want all mask fff", got)
	}
}

func TestWorkerHook_NoOpOnUnsupportedTopology(t *testing.T) {
	t.Parallel()

	s, applied := newTestScheduler(uniformTopology(4))

	hook := s.NewWorkerHook()
	hook.Start()
	for i := 0; i < 5*MaskPollInterval; i++ {
		hook.Tick()
	}
	hook.Stop()

	if len(*applied) != 0 {
		t.Errorf("unsupported topology applied masks: %v", *applied)
	}
}

func TestPinProcess(t *testing.T) {
	t.Parallel()

	s, applied := newTestScheduler(hybridTopo())
	s.SetEcoOptIn(true)
	s.SetComputeActive(true)
	s.SetBackground(true)

	*applied = (*applied)[:0] // discard the transition-time application
	s.PinProcess(12345)
	if len(*applied) != 1 || (*applied)[0] != 0xF00 {
		t.Errorf("PinProcess applied %v, want [f00]", *applied)
	}

	// Unsupported topology: silent no-op.
	u, uApplied := newTestScheduler(uniformTopology(4))
	u.PinProcess(12345)
	if len(*uApplied) != 0 {
		t.Errorf("PinProcess on uniform topology applied %v", *uApplied)
	}
}

func TestScheduler_TransitionAppliesToOwnProcess(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler(hybridTopo())

	type procApply struct {
		pid  int
		mask uint64
	}
	var procApplies []procApply
	s.applyProcess = func(pid int, mask uint64) error {
		procApplies = append(procApplies, procApply{pid, mask})
		return nil
	}

	s.SetEcoOptIn(true)
	s.SetComputeActive(true)
	s.SetBackground(true)  // -> efficiency_only
	s.SetBackground(false) // -> all_cores

	want := []uint64{0xF00, 0xFFF}
	if len(procApplies) != len(want) {
		t.Fatalf("process applications = %v, want masks %v", procApplies, want)
	}
	self := os.Getpid()
	for i, pa := range procApplies {
		if pa.mask != want[i] {
			t.Errorf("application[%d] mask = %x, want %x", i, pa.mask, want[i])
		}
		if pa.pid != self {
			t.Errorf("application[%d] pid = %d, want own pid %d", i, pa.pid, self)
		}
	}
}
