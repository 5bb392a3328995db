package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
)

// ============================================================================
// Presenter input (evdev)
// ============================================================================
// Clickers and keyboards are read straight from /dev/input so they work when
// the prompter is headless. Key presses are translated into actions.
// ============================================================================

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

var inputEventSize = binary.Size(inputEvent{})

// decodeInputEvent parses one raw event.
func decodeInputEvent(buf []byte) (inputEvent, error) {
	var ev inputEvent
	if len(buf) < inputEventSize {
		return ev, fmt.Errorf("short input event: %d bytes", len(buf))
	}
	err := binary.Read(bytes.NewReader(buf[:inputEventSize]), binary.LittleEndian, &ev)
	return ev, err
}

// keyAction maps a key event to a prompter action. Releases are ignored;
// auto-repeat is honored so holding a speed key keeps adjusting.
func keyAction(ev inputEvent) (Event, bool) {
	if ev.Type != EV_KEY {
		return nil, false
	}
	if ev.Value != evValuePress && ev.Value != evValueRepeat {
		return nil, false
	}
	repeat := ev.Value == evValueRepeat

	switch ev.Code {
	case KEY_PAGEDOWN, KEY_PLAYPAUSE, KEY_SPACE:
		if repeat {
			return nil, false
		}
		return Toggle{}, true
	case KEY_PAGEUP, KEY_LEFT:
		if repeat {
			return nil, false
		}
		return JumpBack{}, true
	case KEY_VOLUMEUP, KEY_UP:
		return AdjustSpeed{Steps: 1}, true
	case KEY_VOLUMEDOWN, KEY_DOWN:
		return AdjustSpeed{Steps: -1}, true
	case KEY_HOME, KEY_STOPCD:
		if repeat {
			return nil, false
		}
		return Reset{}, true
	default:
		return nil, false
	}
}

// runInputDevices opens the configured devices and forwards their key actions
// until ctx is canceled or every device is gone.
func runInputDevices(ctx context.Context, paths []string, events chan<- Event, logger *slog.Logger) error {
	var files []*os.File
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			logger.Warn("failed to open input device", "device", p, "error", err, "tip", "run as root or add user to 'input' group")
			continue
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return fmt.Errorf("no input device could be opened")
	}
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()
	logger.Info("input devices open", "count", len(files))

	raw := make(chan inputEvent, 64)
	readErr := make(chan error, 1)
	go readInputEvents(ctx, files, raw, readErr, logger)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case ev := <-raw:
			a, ok := keyAction(ev)
			if !ok {
				continue
			}
			select {
			case events <- a:
			default:
				logger.Warn("event queue full, dropping key action", "code", ev.Code)
			}
		}
	}
}
