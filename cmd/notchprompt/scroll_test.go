package main

import (
	"math"
	"testing"
	"time"
)

const floatTol = 1e-6

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// runTicks advances s by n ticks spaced dt apart, starting after t0.
func runTicks(s ScrollState, t0 time.Time, n int, dt time.Duration, in ScrollInputs) (ScrollState, []RenderSample, time.Time) {
	now := t0
	samples := make([]RenderSample, 0, n)
	for i := 0; i < n; i++ {
		now = now.Add(dt)
		var sample RenderSample
		s, sample = StepScroll(s, now, in, DefaultScrollTuning())
		samples = append(samples, sample)
	}
	return s, samples, now
}

func runningInputs(content, gap, speed float64, mode ScrollMode) ScrollInputs {
	return ScrollInputs{
		SpeedUnitsPerSecond: speed,
		ContentHeight:       content,
		LoopGap:             gap,
		ViewportHeight:      150,
		TopClearance:        30,
		StartPhase:          -20,
		Mode:                mode,
		IsRunning:           true,
		MetricsKnown:        true,
	}
}

func TestStepScroll_InfiniteWrapsOnce(t *testing.T) {
	in := runningInputs(1000, 24, 80, ScrollModeInfinite)

	var s ScrollState
	s.ResetToStart(in)
	if s.Phase != -20 || s.CurrentSpeedMultiplier != 1 {
		t.Fatalf("after reset: phase=%f multiplier=%f, want -20 and 1", s.Phase, s.CurrentSpeedMultiplier)
	}

	t0 := time.Unix(1_700_000_000, 0)
	s.LastTick = t0

	// 13 s in ticks at the dt cap.
	s, samples, now := runTicks(s, t0, 52, 250*time.Millisecond, in)
	if !approxEqual(s.Phase, 1020, floatTol) {
		t.Fatalf("phase after 13s = %f, want 1020", s.Phase)
	}
	if got := samples[len(samples)-1].VisibleOffset; !approxEqual(got, 1020, floatTol) {
		t.Fatalf("visible offset after 13s = %f, want 1020 (not wrapped)", got)
	}

	s, samples, _ = runTicks(s, now, 4, 250*time.Millisecond, in)
	if !approxEqual(s.Phase, 1100, floatTol) {
		t.Fatalf("phase after 14s = %f, want 1100", s.Phase)
	}
	if got := samples[len(samples)-1].VisibleOffset; !approxEqual(got, 76, floatTol) {
		t.Fatalf("visible offset after 14s = %f, want 76 (wrapped once)", got)
	}
}

func TestStepScroll_StopAtEndHaltsWithinFirstPass(t *testing.T) {
	in := runningInputs(500, 20, 100, ScrollModeStopAtEnd)

	if got := in.CycleLength(); got != 520 {
		t.Fatalf("cycle length = %f, want 520", got)
	}
	if got := EndPhase(in); got != 380 {
		t.Fatalf("end phase = %f, want 380", got)
	}

	var s ScrollState
	s.ResetToStart(in)
	t0 := time.Unix(1_700_000_000, 0)
	s.LastTick = t0

	s, samples, _ := runTicks(s, t0, 40, 250*time.Millisecond, in)

	reached := 0
	for _, sm := range samples {
		if sm.ReachedEndThisTick {
			reached++
		}
	}
	if reached != 1 {
		t.Fatalf("end signal fired %d times, want exactly 1", reached)
	}
	if s.Phase != 380 {
		t.Fatalf("phase = %f, want 380", s.Phase)
	}
	if !s.HasReachedEnd {
		t.Fatalf("HasReachedEnd = false, want true")
	}
	if s.CurrentSpeedMultiplier != 0 {
		t.Fatalf("multiplier = %f, want 0 after stop", s.CurrentSpeedMultiplier)
	}
}

func TestStepScroll_ReachedEndRearmedByJumpBack(t *testing.T) {
	in := runningInputs(500, 20, 100, ScrollModeStopAtEnd)

	var s ScrollState
	s.ResetToStart(in)
	t0 := time.Unix(1_700_000_000, 0)
	s.LastTick = t0
	s, _, now := runTicks(s, t0, 40, 250*time.Millisecond, in)
	if !s.HasReachedEnd {
		t.Fatalf("expected end reached")
	}

	s.JumpBack(100, in)
	if s.HasReachedEnd {
		t.Fatalf("jump back did not re-arm end detection")
	}
	if s.Phase != 280 {
		t.Fatalf("phase after jump back = %f, want 280", s.Phase)
	}

	s.CurrentSpeedMultiplier = 1
	s, samples, _ := runTicks(s, now, 20, 250*time.Millisecond, in)
	reached := 0
	for _, sm := range samples {
		if sm.ReachedEndThisTick {
			reached++
		}
	}
	if reached != 1 || s.Phase != 380 {
		t.Fatalf("after re-arm: reached=%d phase=%f, want 1 and 380", reached, s.Phase)
	}
}

func TestStepScroll_StopTargetUsesCurrentCycle(t *testing.T) {
	in := runningInputs(500, 20, 100, ScrollModeStopAtEnd)

	// Already past this cycle's end: finish the pass into the next cycle.
	if got := StopTargetPhase(400, in); got != 520+380 {
		t.Fatalf("StopTargetPhase(400) = %f, want %f", got, 520.0+380.0)
	}
	if got := StopTargetPhase(1100, in); got != 1040+380 {
		t.Fatalf("StopTargetPhase(1100) = %f, want %f", got, 1040.0+380.0)
	}
	if got := StopTargetPhase(-20, in); got != 380 {
		t.Fatalf("StopTargetPhase(-20) = %f, want 380", got)
	}
}

func TestStepScroll_RampConvergesIndependentOfStepSize(t *testing.T) {
	in := runningInputs(1000, 24, 80, ScrollModeInfinite)
	t0 := time.Unix(1_700_000_000, 0)

	coarse := ScrollState{LastTick: t0}
	coarse, _, _ = runTicks(coarse, t0, 4, 250*time.Millisecond, in)

	fine := ScrollState{LastTick: t0}
	prev := 0.0
	now := t0
	for i := 0; i < 60; i++ {
		now = now.Add(time.Second / 60)
		fine, _ = StepScroll(fine, now, in, DefaultScrollTuning())
		if fine.CurrentSpeedMultiplier < prev {
			t.Fatalf("multiplier decreased at step %d: %f < %f", i, fine.CurrentSpeedMultiplier, prev)
		}
		if fine.CurrentSpeedMultiplier > 1 {
			t.Fatalf("multiplier overshot: %f", fine.CurrentSpeedMultiplier)
		}
		prev = fine.CurrentSpeedMultiplier
	}

	if !approxEqual(coarse.CurrentSpeedMultiplier, fine.CurrentSpeedMultiplier, 1e-3) {
		t.Fatalf("coarse=%f fine=%f, want equal within tolerance", coarse.CurrentSpeedMultiplier, fine.CurrentSpeedMultiplier)
	}

	// Held long enough, it settles on the target exactly.
	long := fine
	long, _, _ = runTicks(long, now, 40, 250*time.Millisecond, in)
	if long.CurrentSpeedMultiplier != 1 || !long.Settled() {
		t.Fatalf("multiplier = %f, want settled at 1", long.CurrentSpeedMultiplier)
	}
}

func TestStepScroll_ClampsLongStall(t *testing.T) {
	in := runningInputs(1000, 24, 80, ScrollModeInfinite)
	t0 := time.Unix(1_700_000_000, 0)

	s := ScrollState{Phase: 100, CurrentSpeedMultiplier: 1, TargetSpeedMultiplier: 1, LastTick: t0}
	s, _ = StepScroll(s, t0.Add(10*time.Minute), in, DefaultScrollTuning())

	maxAdvance := maxScrollDt * in.SpeedUnitsPerSecond
	if s.Phase-100 > maxAdvance+floatTol {
		t.Fatalf("advanced %f after a 10 minute stall, want <= %f", s.Phase-100, maxAdvance)
	}
}

func TestStepScroll_FirstTickUsesNominalDt(t *testing.T) {
	in := runningInputs(1000, 24, 60, ScrollModeInfinite)

	s := ScrollState{CurrentSpeedMultiplier: 1, TargetSpeedMultiplier: 1}
	s, _ = StepScroll(s, time.Unix(1_700_000_000, 0), in, DefaultScrollTuning())

	if !approxEqual(s.Phase, 1, floatTol) {
		t.Fatalf("phase after first tick = %f, want one nominal frame (1)", s.Phase)
	}
}

func TestStepScroll_NegativeDtDoesNotMove(t *testing.T) {
	in := runningInputs(1000, 24, 80, ScrollModeInfinite)
	t0 := time.Unix(1_700_000_000, 0)

	s := ScrollState{Phase: 50, CurrentSpeedMultiplier: 1, TargetSpeedMultiplier: 1, LastTick: t0}
	s, _ = StepScroll(s, t0.Add(-time.Second), in, DefaultScrollTuning())
	if s.Phase != 50 {
		t.Fatalf("phase = %f, want unchanged 50", s.Phase)
	}
}

func TestStepScroll_RenormalizesPreservingOffset(t *testing.T) {
	in := runningInputs(100, 0, 80, ScrollModeInfinite)
	t0 := time.Unix(1_700_000_000, 0)

	s := ScrollState{Phase: 850, CurrentSpeedMultiplier: 1, TargetSpeedMultiplier: 1, LastTick: t0}
	s, sample := StepScroll(s, t0.Add(250*time.Millisecond), in, DefaultScrollTuning())

	// 850 + 20 = 870 > 8 cycles of 100: folded into one cycle.
	if s.Phase >= 100 || s.Phase < 0 {
		t.Fatalf("phase = %f, want folded into [0,100)", s.Phase)
	}
	if !approxEqual(sample.VisibleOffset, 70, floatTol) {
		t.Fatalf("visible offset = %f, want 70", sample.VisibleOffset)
	}
}

func TestStepScroll_UnknownMetricsHoldsPhase(t *testing.T) {
	in := runningInputs(1000, 24, 80, ScrollModeInfinite)
	in.MetricsKnown = false
	t0 := time.Unix(1_700_000_000, 0)

	s := ScrollState{Phase: 10, CurrentSpeedMultiplier: 1, TargetSpeedMultiplier: 1}
	s, sample := StepScroll(s, t0, in, DefaultScrollTuning())
	if s.Phase != 10 || sample.VisibleOffset != 0 {
		t.Fatalf("phase=%f offset=%f, want 10 and 0", s.Phase, sample.VisibleOffset)
	}
	if !s.LastTick.Equal(t0) {
		t.Fatalf("LastTick not recorded")
	}
}

func TestStepScroll_SuspendedEasesToZero(t *testing.T) {
	in := runningInputs(1000, 24, 80, ScrollModeInfinite)
	in.IsSuspended = true
	t0 := time.Unix(1_700_000_000, 0)

	s := ScrollState{Phase: 10, CurrentSpeedMultiplier: 1, TargetSpeedMultiplier: 1, LastTick: t0}
	s, _, _ = runTicks(s, t0, 40, 250*time.Millisecond, in)
	if s.CurrentSpeedMultiplier != 0 || s.TargetSpeedMultiplier != 0 {
		t.Fatalf("multiplier = %f target = %f, want 0", s.CurrentSpeedMultiplier, s.TargetSpeedMultiplier)
	}
	phase := s.Phase
	s, _, _ = runTicks(s, t0.Add(time.Hour), 4, 250*time.Millisecond, in)
	if s.Phase != phase {
		t.Fatalf("phase moved while suspended: %f -> %f", phase, s.Phase)
	}
}

func TestScrollState_JumpBackClampsAndIgnoresNonPositive(t *testing.T) {
	in := runningInputs(1000, 24, 80, ScrollModeInfinite)

	s := ScrollState{Phase: 100}
	s.JumpBack(0, in)
	s.JumpBack(-5, in)
	s.JumpBack(math.NaN(), in)
	if s.Phase != 100 {
		t.Fatalf("phase = %f, want 100 after no-op jumps", s.Phase)
	}

	s.JumpBack(500, in)
	if s.Phase != in.StartPhase {
		t.Fatalf("phase = %f, want clamped to start %f", s.Phase, in.StartPhase)
	}
}

func TestScrollInputs_CycleLengthFloorsContent(t *testing.T) {
	for _, h := range []float64{0, -5, 0.2, math.NaN()} {
		in := ScrollInputs{ContentHeight: h, LoopGap: -3}
		if got := in.CycleLength(); got != minContentHeight {
			t.Fatalf("CycleLength(content=%v, gap=-3) = %f, want %f", h, got, minContentHeight)
		}
	}
}
