//go:build !linux

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
)

func readInputEvents(ctx context.Context, files []*os.File, events chan<- inputEvent, readErr chan<- error, logger *slog.Logger) {
	readErr <- errors.New("evdev input is only supported on linux")
}
