package main

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Events
// ============================================================================
// Events are the reducer's inputs: user actions (keys, IPC, HTTP, clickers),
// clock ticks, and observations produced by side effects.
// ============================================================================

// Event is the marker interface for everything the reducer consumes.
type Event interface {
	eventMarker()
}

// Tick is emitted by the daemon loop at the current cadence.
// Dt is the wall-clock delta since the previous tick in seconds (informational;
// the scroll engine keeps its own clock).
type Tick struct {
	Now time.Time
	Dt  float64
}

func (Tick) eventMarker() {}

// TimedEvent stamps an action with the time the daemon received it.
type TimedEvent struct {
	Event Event
	At    time.Time
}

func (TimedEvent) eventMarker() {}

// RequestStateSnapshot asks the loop for a StateSnapshot on Reply.
type RequestStateSnapshot struct {
	Reply chan StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// TimerRearmed tells the reducer that the tick timer restarted after it was
// stopped, so the engine must not integrate the idle gap.
type TimerRearmed struct{}

func (TimerRearmed) eventMarker() {}

// ============================================================================
// Actions
// ============================================================================

// Start begins playback (through a countdown if the policy asks for it).
type Start struct{}

// Stop pauses playback or cancels a countdown.
type Stop struct{}

// Toggle is Stop while active, Start otherwise.
type Toggle struct{}

// Reset returns to the top of the script and to idle.
type Reset struct{}

// JumpBack rewinds by Seconds of scrolling at the current speed.
// Zero means the configured default.
type JumpBack struct {
	Seconds float64 `json:"seconds,omitempty"`
}

// SetSpeed sets the scroll speed in points per second.
type SetSpeed struct {
	PointsPerSecond float64 `json:"points_per_second"`
}

// AdjustSpeed changes the speed by Delta points per second. Zero Delta with a
// non-zero Steps uses the speed step.
type AdjustSpeed struct {
	Delta float64 `json:"delta,omitempty"`
	Steps int     `json:"steps,omitempty"`
}

// SetScrollMode switches between infinite and stop_at_end.
type SetScrollMode struct {
	Mode ScrollMode `json:"mode"`
}

// SetCountdown configures the countdown length and policy. An empty Policy
// keeps the current policy.
type SetCountdown struct {
	Seconds int             `json:"seconds"`
	Policy  CountdownPolicy `json:"policy,omitempty"`
}

// SetFontSize changes the font size (points). Steps adjusts relative to the current size.
type SetFontSize struct {
	Size  float64 `json:"size,omitempty"`
	Steps int     `json:"steps,omitempty"`
}

// SetText replaces the script text.
type SetText struct {
	Text string `json:"text"`
}

// LoadScript loads the script from a file and watches it for changes.
type LoadScript struct {
	Path string `json:"path"`
}

// ExportScript writes the current script to a file.
type ExportScript struct {
	Path string `json:"path"`
}

// SetSuspended pauses motion without changing playback (pointer hover).
type SetSuspended struct {
	Suspended bool `json:"suspended"`
}

// ViewportResized reports the size of the text area in cells.
type ViewportResized struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// MetricsObserved lets an external renderer report its own measurement in points.
type MetricsObserved struct {
	ContentHeight  float64 `json:"content_height"`
	ViewportHeight float64 `json:"viewport_height"`
}

func (Start) eventMarker()           {}
func (Stop) eventMarker()            {}
func (Toggle) eventMarker()          {}
func (Reset) eventMarker()           {}
func (JumpBack) eventMarker()        {}
func (SetSpeed) eventMarker()        {}
func (AdjustSpeed) eventMarker()     {}
func (SetScrollMode) eventMarker()   {}
func (SetCountdown) eventMarker()    {}
func (SetFontSize) eventMarker()     {}
func (SetText) eventMarker()         {}
func (LoadScript) eventMarker()      {}
func (ExportScript) eventMarker()    {}
func (SetSuspended) eventMarker()    {}
func (ViewportResized) eventMarker() {}
func (MetricsObserved) eventMarker() {}

// ============================================================================
// Observations (emitted by effects)
// ============================================================================

// ScriptLoaded is emitted after a script file was read.
type ScriptLoaded struct {
	Path string
	Text string
	At   time.Time
}

func (ScriptLoaded) eventMarker() {}

// ScriptFileChanged is emitted by the file watcher (already debounced).
type ScriptFileChanged struct {
	Path string
	At   time.Time
}

func (ScriptFileChanged) eventMarker() {}

// CommandFailed is emitted when executing a Command fails.
type CommandFailed struct {
	Command Command
	Err     error
	At      time.Time
}

func (CommandFailed) eventMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================
// EventEnvelope wraps actions for the IPC socket and the HTTP command endpoint.
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete action.
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "start":
		return Start{}, nil
	case "stop", "pause":
		return Stop{}, nil
	case "toggle":
		return Toggle{}, nil
	case "reset":
		return Reset{}, nil

	case "jump_back":
		return decodeAs[JumpBack](env)
	case "set_speed":
		return decodeAs[SetSpeed](env)
	case "adjust_speed":
		return decodeAs[AdjustSpeed](env)
	case "set_scroll_mode":
		return decodeAs[SetScrollMode](env)
	case "set_countdown":
		return decodeAs[SetCountdown](env)
	case "set_font_size":
		return decodeAs[SetFontSize](env)
	case "set_text":
		return decodeAs[SetText](env)
	case "load_script":
		return decodeAs[LoadScript](env)
	case "export_script":
		return decodeAs[ExportScript](env)
	case "set_suspended":
		return decodeAs[SetSuspended](env)
	case "viewport_resized":
		return decodeAs[ViewportResized](env)
	case "metrics_observed":
		return decodeAs[MetricsObserved](env)

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// decodeAs decodes the envelope payload into a T.
func decodeAs[T Event](env EventEnvelope) (Event, error) {
	var a T
	if err := decodeData(env, &a); err != nil {
		return nil, err
	}
	return a, nil
}

// decodeData unmarshals the envelope payload into v. A missing payload leaves
// v at its zero value.
func decodeData(env EventEnvelope, v any) error {
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", env.Type, err)
	}
	return nil
}

// eventTypeName returns the wire name of an action, or "" if it has none.
func eventTypeName(e Event) string {
	switch e.(type) {
	case Start:
		return "start"
	case Stop:
		return "stop"
	case Toggle:
		return "toggle"
	case Reset:
		return "reset"
	case JumpBack:
		return "jump_back"
	case SetSpeed:
		return "set_speed"
	case AdjustSpeed:
		return "adjust_speed"
	case SetScrollMode:
		return "set_scroll_mode"
	case SetCountdown:
		return "set_countdown"
	case SetFontSize:
		return "set_font_size"
	case SetText:
		return "set_text"
	case LoadScript:
		return "load_script"
	case ExportScript:
		return "export_script"
	case SetSuspended:
		return "set_suspended"
	case ViewportResized:
		return "viewport_resized"
	case MetricsObserved:
		return "metrics_observed"
	default:
		return ""
	}
}

// MarshalEvent serializes an action into a JSON envelope with type discriminator
func MarshalEvent(e Event) ([]byte, error) {
	name := eventTypeName(e)
	if name == "" {
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	env := EventEnvelope{Type: name}
	switch e.(type) {
	case Start, Stop, Toggle, Reset:
		// no payload
	default:
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", name, err)
		}
		env.Data = data
	}

	return json.Marshal(env)
}
