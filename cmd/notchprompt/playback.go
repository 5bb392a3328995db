package main

import (
	"math"
	"time"
)

// PlaybackStatus is the run state of the prompter.
type PlaybackStatus string

const (
	StatusIdle         PlaybackStatus = "idle"
	StatusCountingDown PlaybackStatus = "counting_down"
	StatusRunning      PlaybackStatus = "running"
	StatusPaused       PlaybackStatus = "paused"
)

// CountdownPolicy decides when a start is preceded by a countdown.
type CountdownPolicy string

const (
	CountdownAlways         CountdownPolicy = "always"
	CountdownFreshStartOnly CountdownPolicy = "fresh_start_only"
	CountdownNever          CountdownPolicy = "never"
)

func (p CountdownPolicy) valid() bool {
	switch p {
	case CountdownAlways, CountdownFreshStartOnly, CountdownNever:
		return true
	}
	return false
}

// PlaybackState is the playback controller state machine.
//
// All transitions are in-memory and cannot fail; inputs that make no sense in
// the current state are ignored.
type PlaybackState struct {
	Status PlaybackStatus

	// Countdown sub-state (only meaningful while Status == StatusCountingDown).
	CountdownRemaining int
	CountdownNextAt    time.Time
	// Status to return to if the countdown is cancelled.
	CountdownFrom PlaybackStatus

	// FreshStartDue is set for the first start of a session and after a reset.
	FreshStartDue bool

	// ReachedEnd is set when a stop-at-end episode finished.
	ReachedEnd bool

	// ResumePhase is the phase captured when playback was paused.
	ResumePhase *float64
}

// NewPlaybackState returns the controller state for a new session.
func NewPlaybackState() PlaybackState {
	return PlaybackState{Status: StatusIdle, FreshStartDue: true}
}

func (p PlaybackState) IsRunning() bool { return p.Status == StatusRunning }

// Active reports whether playback is running or about to run.
func (p PlaybackState) Active() bool {
	return p.Status == StatusRunning || p.Status == StatusCountingDown
}

func (p PlaybackState) countdownRequired(seconds int, policy CountdownPolicy) bool {
	if seconds <= 0 {
		return false
	}
	switch policy {
	case CountdownAlways:
		return true
	case CountdownFreshStartOnly:
		return p.FreshStartDue
	default:
		return false
	}
}

// Start begins playback, through a countdown when the policy asks for one.
// It reports whether the status changed.
func (p *PlaybackState) Start(now time.Time, seconds int, policy CountdownPolicy) bool {
	if p.Active() {
		return false
	}

	if p.countdownRequired(seconds, policy) {
		p.CountdownFrom = p.Status
		p.Status = StatusCountingDown
		p.CountdownRemaining = seconds
		p.CountdownNextAt = now.Add(time.Second)
		return true
	}

	p.Status = StatusRunning
	p.FreshStartDue = false
	p.ResumePhase = nil
	return true
}

// Stop pauses running playback or cancels a countdown.
func (p *PlaybackState) Stop(phase float64) bool {
	switch p.Status {
	case StatusCountingDown:
		p.cancelCountdown()
		return true
	case StatusRunning:
		p.Status = StatusPaused
		ph := phase
		p.ResumePhase = &ph
		return true
	default:
		return false
	}
}

// Toggle is Stop when active and Start otherwise.
func (p *PlaybackState) Toggle(now time.Time, phase float64, seconds int, policy CountdownPolicy) bool {
	if p.Active() {
		return p.Stop(phase)
	}
	return p.Start(now, seconds, policy)
}

// Reset returns to idle at the top and makes the next start a fresh one.
func (p *PlaybackState) Reset() {
	p.Status = StatusIdle
	p.CountdownRemaining = 0
	p.CountdownNextAt = time.Time{}
	p.CountdownFrom = ""
	p.ReachedEnd = false
	p.FreshStartDue = true
	p.ResumePhase = nil
}

// RestartFromTop prepares a start after a finished stop-at-end episode.
func (p *PlaybackState) RestartFromTop() {
	p.ReachedEnd = false
	p.FreshStartDue = true
	p.ResumePhase = nil
}

func (p PlaybackState) CanJumpBack() bool {
	return p.Status == StatusRunning || p.Status == StatusPaused
}

// JumpedBack records that the content moved away from its terminal position.
func (p *PlaybackState) JumpedBack() {
	p.ReachedEnd = false
}

// ScrollModeChanged applies a mode switch. Leaving a finished stop-at-end
// episode for infinite mode resumes playback directly, without a countdown.
func (p *PlaybackState) ScrollModeChanged(from, to ScrollMode) bool {
	if from == to {
		return false
	}
	wasTerminal := from == ScrollModeStopAtEnd && p.ReachedEnd
	p.ReachedEnd = false
	if wasTerminal && to == ScrollModeInfinite && !p.Active() {
		p.Status = StatusRunning
		p.ResumePhase = nil
		return true
	}
	return false
}

// AdvanceCountdown decrements the countdown on whole-second boundaries and
// starts playback when it expires.
func (p *PlaybackState) AdvanceCountdown(now time.Time) bool {
	if p.Status != StatusCountingDown {
		return false
	}
	changed := false
	for p.CountdownRemaining > 0 && !now.Before(p.CountdownNextAt) {
		p.CountdownRemaining--
		p.CountdownNextAt = p.CountdownNextAt.Add(time.Second)
		changed = true
	}
	if p.CountdownRemaining <= 0 {
		p.Status = StatusRunning
		p.CountdownRemaining = 0
		p.CountdownNextAt = time.Time{}
		p.CountdownFrom = ""
		p.FreshStartDue = false
		p.ResumePhase = nil
		changed = true
	}
	return changed
}

// MarkReachedEnd handles the engine's end signal.
func (p *PlaybackState) MarkReachedEnd(phase float64) bool {
	if p.Status != StatusRunning {
		p.ReachedEnd = true
		return false
	}
	p.Status = StatusPaused
	p.ReachedEnd = true
	ph := phase
	p.ResumePhase = &ph
	return true
}

func (p *PlaybackState) cancelCountdown() {
	from := p.CountdownFrom
	if from == "" || from == StatusCountingDown || from == StatusRunning {
		from = StatusIdle
	}
	p.Status = from
	p.CountdownRemaining = 0
	p.CountdownNextAt = time.Time{}
	p.CountdownFrom = ""
}

// ============================================================================
// End-of-content policy
// ============================================================================

// EndPhase is the in-cycle phase at which the last line of the script sits
// just above the bottom of the viewport, leaving the top clearance band free.
func EndPhase(in ScrollInputs) float64 {
	visible := math.Max(0, in.ViewportHeight-in.TopClearance)
	return math.Max(in.StartPhase, effectiveContentHeight(in.ContentHeight)-visible)
}

// StopTargetPhase anchors EndPhase to the loop cycle phase is currently in. If
// that cycle's end is already behind, the current pass finishes first.
func StopTargetPhase(phase float64, in ScrollInputs) float64 {
	cycle := in.CycleLength()
	end := EndPhase(in)

	base := math.Max(0, math.Floor(phase/cycle)) * cycle
	if phase-base <= end {
		return base + end
	}
	return base + cycle + end
}

// CopiesUntilStop is the number of stack copies, counted from the copy phase
// is in, up to and including the copy holding the stop target. target is the
// engine's deferred target when it has one.
func CopiesUntilStop(phase float64, target *float64, in ScrollInputs) int {
	cycle := in.CycleLength()
	stop := StopTargetPhase(phase, in)
	if target != nil {
		stop = *target
	}
	first := phase - math.Mod(phase, cycle)
	idx := int(math.Floor((stop - first) / cycle))
	if idx < 0 {
		idx = 0
	}
	return idx + 1
}

// StartAnchorFor is how far below the viewport top the first line starts.
func StartAnchorFor(fontSize float64) float64 {
	return clampFloat(fontSize*startAnchorFontRatio, startAnchorMin, startAnchorMax)
}

// TopClearanceFor is the height of the top fade band.
func TopClearanceFor(fontSize float64) float64 {
	return clampFloat(fontSize*topClearanceFontRatio, topClearanceMin, topClearanceMax)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
