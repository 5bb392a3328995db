package main

import (
	"math"
	"time"
)

// ScrollMode selects what happens when the end of the script scrolls past.
type ScrollMode string

const (
	ScrollModeInfinite  ScrollMode = "infinite"
	ScrollModeStopAtEnd ScrollMode = "stop_at_end"
)

// ParseScrollMode accepts the wire names plus a few spellings people type by hand.
func ParseScrollMode(s string) (ScrollMode, bool) {
	switch s {
	case "infinite", "loop":
		return ScrollModeInfinite, true
	case "stop_at_end", "stop-at-end", "stop":
		return ScrollModeStopAtEnd, true
	default:
		return "", false
	}
}

// ScrollTuning contains the integration constants of the scroll engine.
type ScrollTuning struct {
	NominalDt         float64 // dt used when there is no previous tick (s)
	MaxDt             float64 // dt clamp per tick (s)
	MaxStep           float64 // sub-step ceiling (s)
	LerpRate          float64 // multiplier easing rate (1/s)
	SnapEps           float64 // snap residual
	RenormalizeCycles float64 // infinite-mode fold threshold, in cycles
}

// DefaultScrollTuning returns the tuning used by the daemon.
func DefaultScrollTuning() ScrollTuning {
	return ScrollTuning{
		NominalDt:         nominalFrameDt,
		MaxDt:             maxScrollDt,
		MaxStep:           maxScrollSubStep,
		LerpRate:          speedLerpRate,
		SnapEps:           speedSnapEps,
		RenormalizeCycles: renormalizeCycles,
	}
}

// ScrollInputs is the live configuration the engine reads on every tick.
// It is owned by the caller and rebuilt from PrompterState before each step.
type ScrollInputs struct {
	SpeedUnitsPerSecond float64
	ContentHeight       float64
	LoopGap             float64
	ViewportHeight      float64
	TopClearance        float64
	StartPhase          float64 // negative: content top sits below the viewport top
	Mode                ScrollMode
	IsRunning           bool
	IsSuspended         bool
	MetricsKnown        bool
}

// CycleLength is one content copy plus the gap before the next copy. Always > 0.
func (in ScrollInputs) CycleLength() float64 {
	return effectiveContentHeight(in.ContentHeight) + math.Max(0, in.LoopGap)
}

func (in ScrollInputs) wantsToRun() bool {
	return in.IsRunning && !in.IsSuspended
}

func effectiveContentHeight(h float64) float64 {
	if h < minContentHeight || math.IsNaN(h) {
		return minContentHeight
	}
	return h
}

// ScrollState is the mutable state of one scroll engine.
//
// It is embedded in PrompterState and only ever touched by the daemon goroutine.
type ScrollState struct {
	Phase float64

	CurrentSpeedMultiplier float64
	TargetSpeedMultiplier  float64

	LastTick time.Time // zero means "no previous tick"

	HasReachedEnd      bool
	DeferredStopTarget *float64
}

// RenderSample is the per-tick output of the engine.
type RenderSample struct {
	VisibleOffset      float64
	ReachedEndThisTick bool
}

// StepScroll advances the engine to now.
//
// It is pure with respect to its arguments: the returned state is the only
// mutation. Sub-steps keep the easing and stop detection independent of the
// tick cadence.
func StepScroll(s ScrollState, now time.Time, in ScrollInputs, tun ScrollTuning) (ScrollState, RenderSample) {
	if in.Mode != ScrollModeStopAtEnd {
		s.HasReachedEnd = false
		s.DeferredStopTarget = nil
	}

	if !in.MetricsKnown {
		s.LastTick = now
		return s, RenderSample{}
	}

	dt := tun.NominalDt
	if !s.LastTick.IsZero() {
		dt = now.Sub(s.LastTick).Seconds()
		if dt < 0 {
			dt = 0
		}
		if tun.MaxDt > 0 && dt > tun.MaxDt {
			dt = tun.MaxDt
		}
	}
	s.LastTick = now

	shouldRun := in.wantsToRun() && !(in.Mode == ScrollModeStopAtEnd && s.HasReachedEnd)
	if shouldRun {
		s.TargetSpeedMultiplier = 1
	} else {
		s.TargetSpeedMultiplier = 0
	}

	var reached bool

	steps := 1
	if tun.MaxStep > 0 && dt > tun.MaxStep {
		steps = int(math.Ceil(dt/tun.MaxStep - 1e-9))
	}
	step := dt / float64(steps)

	for i := 0; i < steps && dt > 0; i++ {
		s.CurrentSpeedMultiplier = easeMultiplier(s.CurrentSpeedMultiplier, s.TargetSpeedMultiplier, step, tun)

		if in.Mode == ScrollModeStopAtEnd && !s.HasReachedEnd && s.DeferredStopTarget == nil {
			target := StopTargetPhase(s.Phase, in)
			s.DeferredStopTarget = &target
		}

		s.Phase += in.SpeedUnitsPerSecond * s.CurrentSpeedMultiplier * step

		if in.Mode == ScrollModeStopAtEnd && !s.HasReachedEnd && s.DeferredStopTarget != nil {
			if s.Phase >= *s.DeferredStopTarget {
				s.Phase = *s.DeferredStopTarget
				s.CurrentSpeedMultiplier = 0
				s.TargetSpeedMultiplier = 0
				s.HasReachedEnd = true
				s.DeferredStopTarget = nil
				reached = true
				break
			}
		}
	}

	cycle := in.CycleLength()
	if in.Mode == ScrollModeInfinite && s.Phase > tun.RenormalizeCycles*cycle {
		s.Phase = math.Mod(s.Phase, cycle)
	}

	return s, RenderSample{
		VisibleOffset:      math.Mod(s.Phase, cycle),
		ReachedEndThisTick: reached,
	}
}

// easeMultiplier moves current toward target with an exponential approach and
// snaps once the residual is negligible. The result never overshoots.
func easeMultiplier(current, target, step float64, tun ScrollTuning) float64 {
	k := tun.LerpRate * step
	if k > 1 {
		k = 1
	}
	current += (target - current) * k
	if math.Abs(target-current) < tun.SnapEps {
		current = target
	}
	if current < 0 {
		return 0
	}
	if current > 1 {
		return 1
	}
	return current
}

// ResetToStart puts the phase at the start anchor and clears every episode flag.
// The multipliers jump to the desired run state so a running prompter does not
// re-ramp after a reset.
func (s *ScrollState) ResetToStart(in ScrollInputs) {
	s.Phase = in.StartPhase
	s.HasReachedEnd = false
	s.DeferredStopTarget = nil
	s.LastTick = time.Time{}

	m := 0.0
	if in.wantsToRun() {
		m = 1
	}
	s.CurrentSpeedMultiplier = m
	s.TargetSpeedMultiplier = m
}

// JumpBack rewinds by distance, never above the start of the content.
func (s *ScrollState) JumpBack(distance float64, in ScrollInputs) {
	if distance <= 0 || math.IsNaN(distance) {
		return
	}
	s.Phase = math.Max(in.StartPhase, s.Phase-distance)
	s.HasReachedEnd = false
	s.DeferredStopTarget = nil
}

// OnScrollModeChanged re-arms end detection without moving the content.
func (s *ScrollState) OnScrollModeChanged() {
	s.HasReachedEnd = false
	s.DeferredStopTarget = nil
	s.LastTick = time.Time{}
}

// OnContentOrMetricsChanged invalidates any end target computed for the old
// content height.
func (s *ScrollState) OnContentOrMetricsChanged(in ScrollInputs) {
	s.ResetToStart(in)
}

// Rearm forgets the previous tick so that the first tick after the scheduler
// restarts its timer integrates a nominal frame instead of the idle gap.
func (s *ScrollState) Rearm() {
	s.LastTick = time.Time{}
}

// Settled reports whether the multiplier has reached its target.
func (s ScrollState) Settled() bool {
	return s.CurrentSpeedMultiplier == s.TargetSpeedMultiplier
}
