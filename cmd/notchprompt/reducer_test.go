package main

import (
	"strings"
	"testing"
	"time"
)

var testT0 = time.Unix(1_700_000_000, 0)

// newTestState returns a prompter with known metrics: 40 columns by 6 rows at
// font size 20 (line height 25).
func newTestState(t *testing.T, text string) *PrompterState {
	t.Helper()
	s := NewPrompterState(DefaultPrompterSettings(), text, "")
	rr := Reduce(s, TimedEvent{Event: ViewportResized{Cols: 40, Rows: 6}, At: testT0}, DefaultScrollTuning())
	if !rr.State.Metrics.Known {
		t.Fatalf("metrics unknown after resize")
	}
	return rr.State
}

// reduceAt applies an action stamped at at.
func reduceAt(s *PrompterState, a Event, at time.Time) ReduceResult {
	return Reduce(s, TimedEvent{Event: a, At: at}, DefaultScrollTuning())
}

func findBroadcast[T StateBroadcast](bs []StateBroadcast) (T, bool) {
	for _, b := range bs {
		if v, ok := b.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func findCommand[T Command](cs []Command) (T, bool) {
	for _, c := range cs {
		if v, ok := c.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func TestReduce_ViewportResizeMeasuresContent(t *testing.T) {
	s := NewPrompterState(DefaultPrompterSettings(), "one\ntwo\nthree\nfour", "")
	rr := reduceAt(s, ViewportResized{Cols: 40, Rows: 6}, testT0)

	if got := rr.State.Metrics.ContentHeight; got != 100 {
		t.Fatalf("content height = %f, want 100 (4 lines x 25)", got)
	}
	if got := rr.State.Metrics.ViewportHeight; got != 150 {
		t.Fatalf("viewport height = %f, want 150", got)
	}
	cc, ok := findBroadcast[BroadcastContentChanged](rr.Broadcasts)
	if !ok {
		t.Fatalf("expected BroadcastContentChanged, got %#v", rr.Broadcasts)
	}
	if cc.LineHeight != 25 || cc.ContentHeight != 100 {
		t.Fatalf("content changed = %+v", cc)
	}
	if rr.State.Scroll.Phase != -StartAnchorFor(defaultFontSize) {
		t.Fatalf("phase = %f, want start anchor", rr.State.Scroll.Phase)
	}

	// Same size again is a no-op.
	rr = reduceAt(rr.State, ViewportResized{Cols: 40, Rows: 6}, testT0)
	if len(rr.Broadcasts) != 0 {
		t.Fatalf("repeat resize broadcast %#v", rr.Broadcasts)
	}
}

func TestReduce_StartWithFreshCountdown(t *testing.T) {
	s := newTestState(t, "hello")

	rr := reduceAt(s, Start{}, testT0)
	pc, ok := findBroadcast[BroadcastPlaybackChanged](rr.Broadcasts)
	if !ok || pc.Status != StatusCountingDown || pc.CountdownRemaining != defaultCountdownSeconds {
		t.Fatalf("playback broadcast = %+v (found=%t), want counting_down/%d", pc, ok, defaultCountdownSeconds)
	}

	// Countdown decrements on ticks, then the engine starts running.
	s = rr.State
	var statuses []PlaybackStatus
	for i := 1; i <= 4*defaultCountdownSeconds; i++ {
		rr = Reduce(s, Tick{Now: testT0.Add(time.Duration(i) * 250 * time.Millisecond)}, DefaultScrollTuning())
		s = rr.State
		for _, b := range rr.Broadcasts {
			if pc, ok := b.(BroadcastPlaybackChanged); ok {
				statuses = append(statuses, pc.Status)
			}
		}
	}
	if s.Playback.Status != StatusRunning {
		t.Fatalf("status = %s after countdown, want running", s.Playback.Status)
	}
	if len(statuses) != defaultCountdownSeconds {
		t.Fatalf("playback broadcasts during countdown = %v, want %d", statuses, defaultCountdownSeconds)
	}
	if statuses[len(statuses)-1] != StatusRunning {
		t.Fatalf("last status = %s, want running", statuses[len(statuses)-1])
	}
}

func TestReduce_ToggleDoesNotCountDownAfterPause(t *testing.T) {
	s := newTestState(t, "hello")
	s.Settings.CountdownPolicy = CountdownNever

	rr := reduceAt(s, Toggle{}, testT0)
	if rr.State.Playback.Status != StatusRunning {
		t.Fatalf("status = %s, want running", rr.State.Playback.Status)
	}
	rr = reduceAt(rr.State, Toggle{}, testT0)
	if rr.State.Playback.Status != StatusPaused || rr.State.Playback.ResumePhase == nil {
		t.Fatalf("status = %s resume=%v, want paused with resume phase", rr.State.Playback.Status, rr.State.Playback.ResumePhase)
	}

	rr.State.Settings.CountdownPolicy = CountdownFreshStartOnly
	rr = reduceAt(rr.State, Toggle{}, testT0)
	if rr.State.Playback.Status != StatusRunning {
		t.Fatalf("status = %s, want running without countdown", rr.State.Playback.Status)
	}
}

func TestReduce_TicksAdvanceAndBroadcastFrames(t *testing.T) {
	s := newTestState(t, "hello")
	s.Settings.CountdownPolicy = CountdownNever
	s = reduceAt(s, Start{}, testT0).State

	rr := Reduce(s, Tick{Now: testT0}, DefaultScrollTuning())
	frame, ok := findBroadcast[BroadcastFrame](rr.Broadcasts)
	if !ok {
		t.Fatalf("no frame broadcast on first tick")
	}
	if frame.Frame.CopyCount < 3 {
		t.Fatalf("copy count = %d, want >= 3", frame.Frame.CopyCount)
	}

	phase := rr.State.Scroll.Phase
	for i := 1; i <= 8; i++ {
		rr = Reduce(rr.State, Tick{Now: testT0.Add(time.Duration(i) * 250 * time.Millisecond)}, DefaultScrollTuning())
	}
	if rr.State.Scroll.Phase <= phase {
		t.Fatalf("phase did not advance: %f -> %f", phase, rr.State.Scroll.Phase)
	}

	// Paused and settled: identical frames are not rebroadcast.
	rr = reduceAt(rr.State, Stop{}, testT0.Add(3*time.Second))
	now := testT0.Add(3 * time.Second)
	for i := 0; i < 40; i++ {
		now = now.Add(250 * time.Millisecond)
		rr = Reduce(rr.State, Tick{Now: now}, DefaultScrollTuning())
	}
	rr = Reduce(rr.State, Tick{Now: now.Add(250 * time.Millisecond)}, DefaultScrollTuning())
	if _, ok := findBroadcast[BroadcastFrame](rr.Broadcasts); ok {
		t.Fatalf("frame rebroadcast while settled")
	}
}

func TestReduce_ResetReturnsToStart(t *testing.T) {
	s := newTestState(t, "hello")
	s.Settings.CountdownPolicy = CountdownNever
	s = reduceAt(s, Start{}, testT0).State
	s.Scroll.Phase = 300

	rr := reduceAt(s, Reset{}, testT0)
	if rr.State.Playback.Status != StatusIdle {
		t.Fatalf("status = %s, want idle", rr.State.Playback.Status)
	}
	if rr.State.Scroll.Phase != -StartAnchorFor(defaultFontSize) {
		t.Fatalf("phase = %f, want start anchor", rr.State.Scroll.Phase)
	}
	if rr.State.Scroll.CurrentSpeedMultiplier != 0 {
		t.Fatalf("multiplier = %f, want 0 after reset to idle", rr.State.Scroll.CurrentSpeedMultiplier)
	}
	if !rr.State.Playback.FreshStartDue {
		t.Fatalf("fresh start not due after reset")
	}
}

func TestReduce_JumpBack(t *testing.T) {
	s := newTestState(t, "hello")
	s.Settings.CountdownPolicy = CountdownNever

	// Idle: ignored.
	rr := reduceAt(s, JumpBack{}, testT0)
	if rr.State.Scroll.Phase != -20 {
		t.Fatalf("jump back while idle moved phase to %f", rr.State.Scroll.Phase)
	}

	s = reduceAt(rr.State, Start{}, testT0).State
	s.Scroll.Phase = 1000

	// Default: 5 s at 80 pt/s.
	rr = reduceAt(s, JumpBack{}, testT0)
	if rr.State.Scroll.Phase != 600 {
		t.Fatalf("phase = %f, want 600", rr.State.Scroll.Phase)
	}
	rr = reduceAt(rr.State, JumpBack{Seconds: 1}, testT0)
	if rr.State.Scroll.Phase != 520 {
		t.Fatalf("phase = %f, want 520", rr.State.Scroll.Phase)
	}
	rr = reduceAt(rr.State, JumpBack{Seconds: -3}, testT0)
	if rr.State.Scroll.Phase != 520 {
		t.Fatalf("negative jump back moved phase to %f", rr.State.Scroll.Phase)
	}
}

func TestReduce_StopAtEndFlow(t *testing.T) {
	lines := make([]string, 20)
	for i := range lines {
		lines[i] = "line"
	}
	s := newTestState(t, strings.Join(lines, "\n"))
	s.Settings.CountdownPolicy = CountdownNever
	s.Settings.SpeedPointsPerSec = 400
	s = reduceAt(s, SetScrollMode{Mode: ScrollModeStopAtEnd}, testT0).State
	s = reduceAt(s, Start{}, testT0).State

	// 20 lines x 25 = 500 content; viewport 150, clearance 30: end at 380.
	end := EndPhase(s.ScrollInputs())
	if end != 380 {
		t.Fatalf("end phase = %f, want 380", end)
	}

	reached := 0
	now := testT0
	for i := 0; i < 40; i++ {
		now = now.Add(250 * time.Millisecond)
		rr := Reduce(s, Tick{Now: now}, DefaultScrollTuning())
		s = rr.State
		if _, ok := findBroadcast[BroadcastReachedEnd](rr.Broadcasts); ok {
			reached++
		}
	}
	if reached != 1 {
		t.Fatalf("reached end broadcast %d times, want 1", reached)
	}
	if s.Scroll.Phase != 380 || s.Playback.Status != StatusPaused || !s.Playback.ReachedEnd {
		t.Fatalf("phase=%f status=%s reached=%t", s.Scroll.Phase, s.Playback.Status, s.Playback.ReachedEnd)
	}

	// Starting again restarts from the top.
	rr := reduceAt(s, Start{}, now)
	if rr.State.Scroll.Phase != -20 || rr.State.Playback.ReachedEnd {
		t.Fatalf("restart: phase=%f reached=%t", rr.State.Scroll.Phase, rr.State.Playback.ReachedEnd)
	}
	if rr.State.Playback.Status != StatusRunning {
		t.Fatalf("restart status = %s, want running", rr.State.Playback.Status)
	}
}

func twentyLineState(t *testing.T) *PrompterState {
	t.Helper()
	lines := make([]string, 20)
	for i := range lines {
		lines[i] = "line"
	}
	return newTestState(t, strings.Join(lines, "\n"))
}

func TestReduce_SwitchToInfiniteAfterEndResumes(t *testing.T) {
	// 500 content, viewport 150, clearance 30: the stop sits at 380.
	s := twentyLineState(t)
	s.Settings.ScrollMode = ScrollModeStopAtEnd
	s.Playback.Status = StatusPaused
	s.Playback.ReachedEnd = true
	s.Scroll.HasReachedEnd = true
	s.Scroll.Phase = 380
	s.Scroll.CurrentSpeedMultiplier = 0
	s.Scroll.TargetSpeedMultiplier = 0

	rr := reduceAt(s, SetScrollMode{Mode: ScrollModeInfinite}, testT0)
	if rr.State.Playback.Status != StatusRunning {
		t.Fatalf("status = %s, want running", rr.State.Playback.Status)
	}
	if rr.State.Scroll.HasReachedEnd {
		t.Fatalf("engine end flag not cleared")
	}
	if _, ok := findBroadcast[BroadcastSettingsChanged](rr.Broadcasts); !ok {
		t.Fatalf("no settings broadcast")
	}
	if _, ok := findBroadcast[BroadcastPlaybackChanged](rr.Broadcasts); !ok {
		t.Fatalf("no playback broadcast")
	}

	// Later ticks carry the scroll past the old stop.
	s = rr.State
	now := testT0
	for i := 0; i < 8; i++ {
		now = now.Add(250 * time.Millisecond)
		s = Reduce(s, Tick{Now: now}, DefaultScrollTuning()).State
	}
	if s.Scroll.Phase <= 380 {
		t.Fatalf("phase = %f after 2s in infinite mode, want past 380", s.Scroll.Phase)
	}
	if s.Scroll.HasReachedEnd || s.Playback.ReachedEnd {
		t.Fatalf("end flags set again in infinite mode")
	}

	// Unknown mode is ignored.
	rr = reduceAt(s, SetScrollMode{Mode: "sideways"}, now)
	if len(rr.Broadcasts) != 0 || rr.State.Settings.ScrollMode != ScrollModeInfinite {
		t.Fatalf("unknown mode applied: %#v", rr.Broadcasts)
	}
}

func TestReduce_StopAtEndFrameLimitsCopies(t *testing.T) {
	s := twentyLineState(t)
	s.Scroll.Phase = 450 // past the 380 stop, inside the first cycle

	if got := s.Snapshot().Frame.VisibleCopies; got != 0 {
		t.Fatalf("infinite mode limits copies to %d", got)
	}

	s = reduceAt(s, SetScrollMode{Mode: ScrollModeStopAtEnd}, testT0).State
	if got := s.Snapshot().Frame.VisibleCopies; got != 2 {
		t.Fatalf("visible copies = %d past the stop, want 2 (the stop is in the next copy)", got)
	}

	s.Scroll.Phase = 100
	if got := s.Snapshot().Frame.VisibleCopies; got != 1 {
		t.Fatalf("visible copies = %d before the stop, want 1", got)
	}
}

func TestReduce_SpeedClampedAndStepped(t *testing.T) {
	s := newTestState(t, "hello")

	rr := reduceAt(s, SetSpeed{PointsPerSecond: 10_000}, testT0)
	if rr.State.Settings.SpeedPointsPerSec != maxSpeedPointsPerSec {
		t.Fatalf("speed = %f, want clamped to %f", rr.State.Settings.SpeedPointsPerSec, maxSpeedPointsPerSec)
	}
	rr = reduceAt(rr.State, AdjustSpeed{Steps: -2}, testT0)
	if rr.State.Settings.SpeedPointsPerSec != maxSpeedPointsPerSec-2*speedStepPointsPerSec {
		t.Fatalf("speed = %f after two steps down", rr.State.Settings.SpeedPointsPerSec)
	}
	rr = reduceAt(rr.State, SetSpeed{PointsPerSecond: 1}, testT0)
	if rr.State.Settings.SpeedPointsPerSec != minSpeedPointsPerSec {
		t.Fatalf("speed = %f, want clamped to %f", rr.State.Settings.SpeedPointsPerSec, minSpeedPointsPerSec)
	}
	if _, ok := findBroadcast[BroadcastSettingsChanged](rr.Broadcasts); !ok {
		t.Fatalf("no settings broadcast")
	}
}

func TestReduce_FontSizeRemeasures(t *testing.T) {
	s := newTestState(t, "one\ntwo")
	if s.Metrics.ContentHeight != 50 {
		t.Fatalf("content height = %f, want 50", s.Metrics.ContentHeight)
	}

	rr := reduceAt(s, SetFontSize{Steps: 5}, testT0)
	if rr.State.Settings.FontSize != 30 {
		t.Fatalf("font size = %f, want 30", rr.State.Settings.FontSize)
	}
	if rr.State.Metrics.ContentHeight != 75 {
		t.Fatalf("content height = %f, want 75", rr.State.Metrics.ContentHeight)
	}
	if rr.State.Scroll.Phase != -30 {
		t.Fatalf("phase = %f, want new start anchor -30", rr.State.Scroll.Phase)
	}
}

func TestReduce_SetTextStopsWatching(t *testing.T) {
	s := newTestState(t, "hello")
	s.Script.Path = "/tmp/talk.md"

	rr := reduceAt(s, SetText{Text: "new text"}, testT0)
	w, ok := findCommand[CmdWatchScript](rr.Commands)
	if !ok || w.Path != "" {
		t.Fatalf("expected CmdWatchScript{\"\"}, got %#v", rr.Commands)
	}
	if rr.State.Script.Text != "new text" || rr.State.Script.Path != "" {
		t.Fatalf("script = %+v", rr.State.Script)
	}
}

func TestReduce_ScriptLoadAndReload(t *testing.T) {
	s := newTestState(t, "hello")

	rr := reduceAt(s, LoadScript{Path: "/tmp/talk.md"}, testT0)
	if c, ok := findCommand[CmdLoadScript](rr.Commands); !ok || c.Path != "/tmp/talk.md" {
		t.Fatalf("commands = %#v, want CmdLoadScript", rr.Commands)
	}

	rr = Reduce(rr.State, ScriptLoaded{Path: "/tmp/talk.md", Text: "from file", At: testT0}, DefaultScrollTuning())
	if c, ok := findCommand[CmdWatchScript](rr.Commands); !ok || c.Path != "/tmp/talk.md" {
		t.Fatalf("commands = %#v, want CmdWatchScript", rr.Commands)
	}
	if rr.State.Script.Text != "from file" {
		t.Fatalf("text = %q", rr.State.Script.Text)
	}

	// A change of the watched file reloads it; other paths are ignored.
	rr = Reduce(rr.State, ScriptFileChanged{Path: "/tmp/other.md"}, DefaultScrollTuning())
	if len(rr.Commands) != 0 {
		t.Fatalf("unexpected commands %#v", rr.Commands)
	}
	rr = Reduce(rr.State, ScriptFileChanged{Path: "/tmp/talk.md"}, DefaultScrollTuning())
	if _, ok := findCommand[CmdLoadScript](rr.Commands); !ok {
		t.Fatalf("no reload on file change")
	}

	// Identical reload is ignored entirely.
	rr = Reduce(rr.State, ScriptLoaded{Path: "/tmp/talk.md", Text: "from file", At: testT0}, DefaultScrollTuning())
	if len(rr.Broadcasts) != 0 || len(rr.Commands) != 0 {
		t.Fatalf("identical reload produced %#v / %#v", rr.Broadcasts, rr.Commands)
	}
}

func TestReduce_ExportCarriesText(t *testing.T) {
	s := newTestState(t, "exported")
	rr := reduceAt(s, ExportScript{Path: "/tmp/out.txt"}, testT0)
	c, ok := findCommand[CmdExportScript](rr.Commands)
	if !ok || c.Text != "exported" || c.Path != "/tmp/out.txt" {
		t.Fatalf("commands = %#v", rr.Commands)
	}
}

func TestReduce_MetricsObservedOverridesUntilTextChange(t *testing.T) {
	s := newTestState(t, "hello")

	rr := reduceAt(s, MetricsObserved{ContentHeight: 900, ViewportHeight: 300}, testT0)
	if rr.State.Metrics.ContentHeight != 900 || !rr.State.Metrics.External {
		t.Fatalf("metrics = %+v", rr.State.Metrics)
	}

	// A resize does not overwrite an external measurement.
	rr = reduceAt(rr.State, ViewportResized{Cols: 20, Rows: 3}, testT0)
	if rr.State.Metrics.ContentHeight != 900 {
		t.Fatalf("content height = %f after resize, want 900", rr.State.Metrics.ContentHeight)
	}

	rr = reduceAt(rr.State, SetText{Text: "other"}, testT0)
	if rr.State.Metrics.External || rr.State.Metrics.ContentHeight == 900 {
		t.Fatalf("external metrics survived a text change: %+v", rr.State.Metrics)
	}
}

func TestReduce_SuspendedBroadcastsOnce(t *testing.T) {
	s := newTestState(t, "hello")
	rr := reduceAt(s, SetSuspended{Suspended: true}, testT0)
	pc, ok := findBroadcast[BroadcastPlaybackChanged](rr.Broadcasts)
	if !ok || !pc.Suspended {
		t.Fatalf("broadcasts = %#v", rr.Broadcasts)
	}
	rr = reduceAt(rr.State, SetSuspended{Suspended: true}, testT0)
	if len(rr.Broadcasts) != 0 {
		t.Fatalf("repeat suspend broadcast %#v", rr.Broadcasts)
	}
}

func TestReduce_CommandFailedBroadcastsError(t *testing.T) {
	s := newTestState(t, "hello")
	rr := Reduce(s, CommandFailed{Command: CmdLoadScript{Path: "x"}, Err: ErrUnableToDecode, At: testT0}, DefaultScrollTuning())
	e, ok := findBroadcast[BroadcastError](rr.Broadcasts)
	if !ok || e.Message != ErrUnableToDecode.Error() {
		t.Fatalf("broadcasts = %#v", rr.Broadcasts)
	}
}

func TestReduce_SnapshotRequest(t *testing.T) {
	s := newTestState(t, "hello")
	reply := make(chan StateSnapshot, 1)
	rr := Reduce(s, RequestStateSnapshot{Reply: reply}, DefaultScrollTuning())
	c, ok := findCommand[CmdPublishStateSnapshot](rr.Commands)
	if !ok {
		t.Fatalf("commands = %#v", rr.Commands)
	}
	if c.Snapshot.ScriptText != "hello" || c.Snapshot.Status != StatusIdle {
		t.Fatalf("snapshot = %+v", c.Snapshot)
	}
}
