package main

import "time"

// ==============================
// Broadcasts (observer notifications)
// ==============================

// StateBroadcast is emitted by the reducer for observers (TUI, WebSocket
// clients). Broadcasts never feed back into the reducer.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastFrame carries the render frame of one tick.
type BroadcastFrame struct {
	Frame         RenderFrame
	Phase         float64
	VisibleOffset float64
	At            time.Time
}

// BroadcastPlaybackChanged is emitted on every playback status change and on
// countdown decrements.
type BroadcastPlaybackChanged struct {
	Status             PlaybackStatus
	CountdownRemaining int
	ReachedEnd         bool
	Suspended          bool
	At                 time.Time
}

// BroadcastReachedEnd is emitted once per stop-at-end episode.
type BroadcastReachedEnd struct {
	Phase float64
	At    time.Time
}

// BroadcastContentChanged is emitted when the script or its layout changed.
type BroadcastContentChanged struct {
	Text          string
	Path          string
	LineHeight    float64
	ContentHeight float64
	At            time.Time
}

// BroadcastSettingsChanged is emitted when a user setting changed.
type BroadcastSettingsChanged struct {
	SpeedPointsPerSec float64
	FontSize          float64
	ScrollMode        ScrollMode
	LoopGap           float64
	CountdownSeconds  int
	CountdownPolicy   CountdownPolicy
	At                time.Time
}

// BroadcastError reports a failed side effect to observers.
type BroadcastError struct {
	Message string
	At      time.Time
}

func (BroadcastFrame) broadcastMarker()           {}
func (BroadcastPlaybackChanged) broadcastMarker() {}
func (BroadcastReachedEnd) broadcastMarker()      {}
func (BroadcastContentChanged) broadcastMarker()  {}
func (BroadcastSettingsChanged) broadcastMarker() {}
func (BroadcastError) broadcastMarker()           {}
