package main

import "time"

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_KEY = 0x01

	KEY_SPACE      = 57
	KEY_HOME       = 102
	KEY_UP         = 103
	KEY_PAGEUP     = 104
	KEY_LEFT       = 105
	KEY_DOWN       = 108
	KEY_PAGEDOWN   = 109
	KEY_VOLUMEDOWN = 114
	KEY_VOLUMEUP   = 115
	KEY_PLAYPAUSE  = 164
	KEY_STOPCD     = 166
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Scroll engine tuning
const (
	nominalFrameDt   = 1.0 / 60.0 // dt used when there is no previous tick (s)
	maxScrollDt      = 0.25       // largest dt integrated in one tick (s)
	maxScrollSubStep = 1.0 / 60.0 // integration sub-step ceiling (s)
	speedLerpRate    = 8.0        // multiplier easing rate (1/s)
	speedSnapEps     = 1e-3       // residual below which the multiplier snaps to target

	// In infinite mode the phase is folded back into one cycle once it exceeds
	// this many cycles.
	renormalizeCycles = 8.0

	minContentHeight = 1.0
)

// Prompter defaults
const (
	defaultSpeedPointsPerSec = 80.0
	minSpeedPointsPerSec     = 10.0
	maxSpeedPointsPerSec     = 400.0
	speedStepPointsPerSec    = 10.0

	defaultFontSize = 20.0
	minFontSize     = 8.0
	maxFontSize     = 96.0
	fontSizeStep    = 2.0

	defaultLoopGap          = 32.0
	defaultJumpBackSeconds  = 5.0
	defaultCountdownSeconds = 3
	maxCountdownSeconds     = 60

	// Line height as a multiple of font size.
	lineSpacing = 1.25

	// Start anchor and top clearance scale with font size, clamped to keep the
	// fade band readable at extreme sizes.
	startAnchorFontRatio  = 1.0
	startAnchorMin        = 12.0
	startAnchorMax        = 48.0
	topClearanceFontRatio = 1.5
	topClearanceMin       = 16.0
	topClearanceMax       = 72.0

	defaultHeadlessCols = 72
	defaultHeadlessRows = 6
)

// Tick cadence
const (
	defaultActiveHz = 60
	defaultIdleHz   = 8
)

// Script file watcher debounce window.
const scriptWatchDebounce = 150 * time.Millisecond

const defaultScript = `Paste your script here.

Tip: press space to start or pause, r to reset, and j to jump back.`
