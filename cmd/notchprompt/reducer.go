package main

import (
	"math"
	"time"
)

// This file implements the reducer:
//
//   - Events: inputs (user actions, clock ticks, file observations, command failures)
//   - Commands: side effects requested by the reducer (file I/O, snapshot replies)
//   - Broadcasts: notifications for observers (TUI, WebSocket clients)
//   - Reduce(): computes next state + commands + broadcasts, without performing I/O
//
// The scroll engine and the playback controller are both embedded in
// PrompterState; Reduce is the single place where they are mutated.

// ReduceResult is the output of Reduce().
type ReduceResult struct {
	State      *PrompterState
	Commands   []Command
	Broadcasts []StateBroadcast
}

func (r *ReduceResult) command(c Command)          { r.Commands = append(r.Commands, c) }
func (r *ReduceResult) broadcast(b StateBroadcast) { r.Broadcasts = append(r.Broadcasts, b) }

// Reduce is the pure reducer:
//
// Rules:
// - Must not perform I/O
// - Must not block
// - Must not mutate anything outside the returned state
func Reduce(s *PrompterState, e Event, tun ScrollTuning) ReduceResult {
	if s == nil {
		s = NewPrompterState(DefaultPrompterSettings(), defaultScript, "")
	}
	out := ReduceResult{State: s}

	switch ev := e.(type) {
	case Tick:
		reduceTick(s, ev.Now, tun, &out)

	case TimedEvent:
		reduceAction(s, ev.Event, ev.At, &out)

	case TimerRearmed:
		s.Scroll.Rearm()

	case RequestStateSnapshot:
		out.command(CmdPublishStateSnapshot{Reply: ev.Reply, Snapshot: s.Snapshot()})

	case ScriptLoaded:
		if ev.Path != s.Script.Path {
			out.command(CmdWatchScript{Path: ev.Path})
		}
		setScript(s, ev.Text, ev.Path, ev.At, &out)

	case ScriptFileChanged:
		if ev.Path != "" && ev.Path == s.Script.Path {
			out.command(CmdLoadScript{Path: ev.Path})
		}

	case CommandFailed:
		msg := "command failed"
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		out.broadcast(BroadcastError{Message: msg, At: ev.At})

	default:
		// Bare actions (tests, in-process callers) are reduced as if received now.
		reduceAction(s, e, time.Time{}, &out)
	}

	return out
}

// reduceTick advances the countdown and the scroll engine by one tick.
func reduceTick(s *PrompterState, now time.Time, tun ScrollTuning, out *ReduceResult) {
	if s.Playback.AdvanceCountdown(now) {
		out.broadcast(playbackBroadcast(s, now))
	}

	next, sample := StepScroll(s.Scroll, now, s.ScrollInputs(), tun)
	s.Scroll = next

	if sample.ReachedEndThisTick {
		s.Playback.MarkReachedEnd(s.Scroll.Phase)
		out.broadcast(BroadcastReachedEnd{Phase: s.Scroll.Phase, At: now})
		out.broadcast(playbackBroadcast(s, now))
	}

	if !s.Metrics.Known {
		return
	}
	frame := s.frame()
	if s.LastFrameKnown && frame == s.LastFrame {
		return
	}
	s.LastFrame = frame
	s.LastFrameKnown = true
	out.broadcast(BroadcastFrame{
		Frame:         frame,
		Phase:         s.Scroll.Phase,
		VisibleOffset: sample.VisibleOffset,
		At:            now,
	})
}

func reduceAction(s *PrompterState, a Event, at time.Time, out *ReduceResult) {
	if at.IsZero() {
		at = time.Now()
	}

	switch a := a.(type) {
	case Start:
		startPlayback(s, at, out)

	case Stop:
		if s.Playback.Stop(s.Scroll.Phase) {
			out.broadcast(playbackBroadcast(s, at))
		}

	case Toggle:
		if s.Playback.Active() {
			if s.Playback.Stop(s.Scroll.Phase) {
				out.broadcast(playbackBroadcast(s, at))
			}
			return
		}
		startPlayback(s, at, out)

	case Reset:
		s.Playback.Reset()
		s.Scroll.ResetToStart(s.ScrollInputs())
		out.broadcast(playbackBroadcast(s, at))

	case JumpBack:
		if !s.Playback.CanJumpBack() {
			return
		}
		seconds := a.Seconds
		if seconds == 0 {
			seconds = s.Settings.JumpBackSeconds
		}
		distance := seconds * s.Settings.SpeedPointsPerSec
		if distance <= 0 || math.IsNaN(distance) {
			return
		}
		s.Scroll.JumpBack(distance, s.ScrollInputs())
		if s.Playback.ReachedEnd {
			s.Playback.JumpedBack()
			out.broadcast(playbackBroadcast(s, at))
		}

	case SetSpeed:
		setSpeed(s, a.PointsPerSecond, at, out)

	case AdjustSpeed:
		delta := a.Delta
		if delta == 0 {
			delta = float64(a.Steps) * speedStepPointsPerSec
		}
		if delta != 0 {
			setSpeed(s, s.Settings.SpeedPointsPerSec+delta, at, out)
		}

	case SetScrollMode:
		mode, ok := ParseScrollMode(string(a.Mode))
		if !ok || mode == s.Settings.ScrollMode {
			return
		}
		from := s.Settings.ScrollMode
		s.Settings.ScrollMode = mode
		s.Scroll.OnScrollModeChanged()
		resumed := s.Playback.ScrollModeChanged(from, mode)
		out.broadcast(settingsBroadcast(s, at))
		if resumed {
			out.broadcast(playbackBroadcast(s, at))
		}

	case SetCountdown:
		if a.Policy != "" && !a.Policy.valid() {
			return
		}
		seconds := a.Seconds
		if seconds < 0 {
			seconds = 0
		}
		if seconds > maxCountdownSeconds {
			seconds = maxCountdownSeconds
		}
		s.Settings.CountdownSeconds = seconds
		if a.Policy != "" {
			s.Settings.CountdownPolicy = a.Policy
		}
		out.broadcast(settingsBroadcast(s, at))

	case SetFontSize:
		size := a.Size
		if size == 0 && a.Steps != 0 {
			size = s.Settings.FontSize + float64(a.Steps)*fontSizeStep
		}
		if size <= 0 || math.IsNaN(size) {
			return
		}
		size = clampFloat(size, minFontSize, maxFontSize)
		if size == s.Settings.FontSize {
			return
		}
		s.Settings.FontSize = size
		s.Metrics.External = false
		s.remeasure()
		contentChanged(s, at, out)
		out.broadcast(settingsBroadcast(s, at))

	case SetText:
		if s.Script.Path != "" {
			out.command(CmdWatchScript{Path: ""})
		}
		setScript(s, a.Text, "", at, out)

	case LoadScript:
		if a.Path == "" {
			return
		}
		out.command(CmdLoadScript{Path: a.Path})

	case ExportScript:
		if a.Path == "" {
			return
		}
		out.command(CmdExportScript{Path: a.Path, Text: s.Script.Text})

	case SetSuspended:
		if a.Suspended == s.Suspended {
			return
		}
		s.Suspended = a.Suspended
		out.broadcast(playbackBroadcast(s, at))

	case ViewportResized:
		if a.Cols <= 0 || a.Rows <= 0 {
			return
		}
		if s.Viewport.Known && s.Viewport.Cols == a.Cols && s.Viewport.Rows == a.Rows {
			return
		}
		prevViewport := s.Metrics.ViewportHeight
		s.Viewport = ViewportState{Cols: a.Cols, Rows: a.Rows, Known: true}
		if s.remeasure() {
			contentChanged(s, at, out)
		} else if s.Metrics.ViewportHeight != prevViewport {
			// The end target depends on the viewport height; let the engine
			// anchor a new one.
			s.Scroll.DeferredStopTarget = nil
		}

	case MetricsObserved:
		h := a.ContentHeight
		if math.IsNaN(h) || math.IsNaN(a.ViewportHeight) {
			return
		}
		changed := !s.Metrics.Known || s.Metrics.ContentHeight != h
		s.Metrics = ContentMetrics{
			ContentHeight:  h,
			ViewportHeight: math.Max(0, a.ViewportHeight),
			LineCount:      s.Metrics.LineCount,
			Known:          true,
			External:       true,
		}
		if changed {
			contentChanged(s, at, out)
		} else {
			s.Scroll.DeferredStopTarget = nil
		}

	default:
		// Unknown action: no-op.
	}
}

// startPlayback starts (or restarts after a finished stop-at-end episode).
func startPlayback(s *PrompterState, at time.Time, out *ReduceResult) {
	if s.Playback.Active() {
		return
	}
	if s.Playback.ReachedEnd && s.Settings.ScrollMode == ScrollModeStopAtEnd {
		s.Playback.RestartFromTop()
		s.Scroll.ResetToStart(s.ScrollInputs())
	}
	if s.Playback.Start(at, s.Settings.CountdownSeconds, s.Settings.CountdownPolicy) {
		out.broadcast(playbackBroadcast(s, at))
	}
}

func setSpeed(s *PrompterState, v float64, at time.Time, out *ReduceResult) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	v = clampFloat(v, minSpeedPointsPerSec, maxSpeedPointsPerSec)
	if v == s.Settings.SpeedPointsPerSec {
		return
	}
	s.Settings.SpeedPointsPerSec = v
	out.broadcast(settingsBroadcast(s, at))
}

// setScript replaces the script. Identical reloads are ignored so editors that
// rewrite a file on save do not restart the scroll.
func setScript(s *PrompterState, text, path string, at time.Time, out *ReduceResult) {
	if s.Script.Text == text && s.Script.Path == path {
		return
	}
	s.Script = ScriptState{Text: text, Path: path, LoadedAt: at}
	s.Metrics.External = false
	s.remeasure()
	contentChanged(s, at, out)
}

// contentChanged resets the engine after the content height changed.
func contentChanged(s *PrompterState, at time.Time, out *ReduceResult) {
	s.Playback.ReachedEnd = false
	s.Scroll.OnContentOrMetricsChanged(s.ScrollInputs())
	s.LastFrameKnown = false
	out.broadcast(BroadcastContentChanged{
		Text:          s.Script.Text,
		Path:          s.Script.Path,
		LineHeight:    lineHeightFor(s.Settings.FontSize),
		ContentHeight: s.Metrics.ContentHeight,
		At:            at,
	})
}

func playbackBroadcast(s *PrompterState, at time.Time) BroadcastPlaybackChanged {
	return BroadcastPlaybackChanged{
		Status:             s.Playback.Status,
		CountdownRemaining: s.Playback.CountdownRemaining,
		ReachedEnd:         s.Playback.ReachedEnd,
		Suspended:          s.Suspended,
		At:                 at,
	}
}

func settingsBroadcast(s *PrompterState, at time.Time) BroadcastSettingsChanged {
	return BroadcastSettingsChanged{
		SpeedPointsPerSec: s.Settings.SpeedPointsPerSec,
		FontSize:          s.Settings.FontSize,
		ScrollMode:        s.Settings.ScrollMode,
		LoopGap:           s.Settings.LoopGap,
		CountdownSeconds:  s.Settings.CountdownSeconds,
		CountdownPolicy:   s.Settings.CountdownPolicy,
		At:                at,
	}
}

// DefaultPrompterSettings returns the settings of a fresh install.
func DefaultPrompterSettings() PrompterSettings {
	return PrompterSettings{
		SpeedPointsPerSec: defaultSpeedPointsPerSec,
		FontSize:          defaultFontSize,
		ScrollMode:        ScrollModeInfinite,
		LoopGap:           defaultLoopGap,
		CountdownSeconds:  defaultCountdownSeconds,
		CountdownPolicy:   CountdownFreshStartOnly,
		JumpBackSeconds:   defaultJumpBackSeconds,
	}
}
