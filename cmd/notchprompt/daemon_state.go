package main

import (
	"time"
)

// PrompterState is the daemon-owned state container.
//
// Ownership: only the daemon goroutine touches it, through Reduce. Other
// goroutines see it as StateSnapshot values or broadcasts.
type PrompterState struct {
	Script   ScriptState
	Settings PrompterSettings
	Viewport ViewportState
	Metrics  ContentMetrics

	Scroll   ScrollState
	Playback PlaybackState

	// Suspended pauses the motion while the pointer hovers the text, without
	// changing the playback status.
	Suspended bool

	// Last published frame, used to skip identical frame broadcasts.
	LastFrame      RenderFrame
	LastFrameKnown bool
}

// ScriptState is the text being prompted.
type ScriptState struct {
	Text     string
	Path     string // empty when the text did not come from a file
	LoadedAt time.Time
}

// PrompterSettings are the user-tunable prompter settings.
type PrompterSettings struct {
	SpeedPointsPerSec float64
	FontSize          float64
	ScrollMode        ScrollMode
	LoopGap           float64
	CountdownSeconds  int
	CountdownPolicy   CountdownPolicy
	JumpBackSeconds   float64
}

// ViewportState is the size of the text area in terminal cells.
type ViewportState struct {
	Cols  int
	Rows  int
	Known bool
}

// ContentMetrics are the measured heights fed to the scroll engine.
type ContentMetrics struct {
	ContentHeight  float64
	ViewportHeight float64
	LineCount      int
	Known          bool

	// External is set when an observer reported its own measurement. It sticks
	// until the text or font size changes.
	External bool
}

// NewPrompterState builds the state for a new session.
func NewPrompterState(settings PrompterSettings, text, path string) *PrompterState {
	s := &PrompterState{
		Script:   ScriptState{Text: text, Path: path},
		Settings: settings,
		Playback: NewPlaybackState(),
	}
	s.Scroll.ResetToStart(s.ScrollInputs())
	return s
}

// ScrollInputs builds the engine configuration for the current state.
func (s *PrompterState) ScrollInputs() ScrollInputs {
	return ScrollInputs{
		SpeedUnitsPerSecond: s.Settings.SpeedPointsPerSec,
		ContentHeight:       s.Metrics.ContentHeight,
		LoopGap:             s.Settings.LoopGap,
		ViewportHeight:      s.Metrics.ViewportHeight,
		TopClearance:        TopClearanceFor(s.Settings.FontSize),
		StartPhase:          -StartAnchorFor(s.Settings.FontSize),
		Mode:                s.Settings.ScrollMode,
		IsRunning:           s.Playback.IsRunning(),
		IsSuspended:         s.Suspended,
		MetricsKnown:        s.Metrics.Known,
	}
}

// remeasure recomputes content metrics from the script and viewport.
// It reports whether the content height changed.
func (s *PrompterState) remeasure() bool {
	if s.Metrics.External || !s.Viewport.Known {
		return false
	}
	lines := wrapScript(s.Script.Text, s.Viewport.Cols)
	prev := s.Metrics

	s.Metrics.LineCount = len(lines)
	s.Metrics.ContentHeight = measureContent(len(lines), s.Settings.FontSize)
	s.Metrics.ViewportHeight = viewportHeightFor(s.Viewport.Rows, s.Settings.FontSize)
	s.Metrics.Known = true

	return !prev.Known || prev.ContentHeight != s.Metrics.ContentHeight
}

// frame maps the current phase to a render frame.
func (s *PrompterState) frame() RenderFrame {
	if !s.Metrics.Known {
		return RenderFrame{CopyCount: 3}
	}
	f := MapToRender(s.Scroll.Phase, s.Metrics.ContentHeight, s.Settings.LoopGap, s.Metrics.ViewportHeight)
	if s.Settings.ScrollMode == ScrollModeStopAtEnd {
		f.VisibleCopies = CopiesUntilStop(s.Scroll.Phase, s.Scroll.DeferredStopTarget, s.ScrollInputs())
	}
	return f
}

// StateSnapshot is an immutable view of PrompterState for other goroutines.
type StateSnapshot struct {
	Status             PlaybackStatus  `json:"status"`
	CountdownRemaining int             `json:"countdown_remaining"`
	ReachedEnd         bool            `json:"reached_end"`
	Suspended          bool            `json:"suspended"`
	ResumePhase        *float64        `json:"resume_phase,omitempty"`
	SpeedPointsPerSec  float64         `json:"speed_points_per_sec"`
	FontSize           float64         `json:"font_size"`
	ScrollMode         ScrollMode      `json:"scroll_mode"`
	LoopGap            float64         `json:"loop_gap"`
	CountdownSeconds   int             `json:"countdown_seconds"`
	CountdownPolicy    CountdownPolicy `json:"countdown_policy"`
	ScriptPath         string          `json:"script_path,omitempty"`
	ScriptText         string          `json:"script_text"`
	Phase              float64         `json:"phase"`
	ContentHeight      float64         `json:"content_height"`
	ViewportHeight     float64         `json:"viewport_height"`
	LineHeight         float64         `json:"line_height"`
	Frame              RenderFrame     `json:"frame"`
}

// Snapshot copies the externally visible parts of the state.
func (s *PrompterState) Snapshot() StateSnapshot {
	var resume *float64
	if s.Playback.ResumePhase != nil {
		v := *s.Playback.ResumePhase
		resume = &v
	}
	return StateSnapshot{
		Status:             s.Playback.Status,
		CountdownRemaining: s.Playback.CountdownRemaining,
		ReachedEnd:         s.Playback.ReachedEnd,
		Suspended:          s.Suspended,
		ResumePhase:        resume,
		SpeedPointsPerSec:  s.Settings.SpeedPointsPerSec,
		FontSize:           s.Settings.FontSize,
		ScrollMode:         s.Settings.ScrollMode,
		LoopGap:            s.Settings.LoopGap,
		CountdownSeconds:   s.Settings.CountdownSeconds,
		CountdownPolicy:    s.Settings.CountdownPolicy,
		ScriptPath:         s.Script.Path,
		ScriptText:         s.Script.Text,
		Phase:              s.Scroll.Phase,
		ContentHeight:      s.Metrics.ContentHeight,
		ViewportHeight:     s.Metrics.ViewportHeight,
		LineHeight:         lineHeightFor(s.Settings.FontSize),
		Frame:              s.frame(),
	}
}
