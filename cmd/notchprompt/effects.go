package main

import (
	"log/slog"
	"time"
)

// effectEnv holds the external systems commands run against.
type effectEnv struct {
	// watcher follows the loaded script file. Nil disables watching.
	watcher *scriptWatcher
}

// runEffect performs the I/O behind one Command and reports the outcome as an
// observation through onEvent. It never reduces; the daemon loop feeds the
// observation back on the next tick.
func runEffect(
	env *effectEnv,
	cmd Command,
	logger *slog.Logger,
	onEvent func(Event),
) {
	if onEvent == nil {
		return
	}

	now := time.Now()

	switch c := cmd.(type) {
	case CmdLoadScript:
		text, err := readScriptFile(c.Path)
		if err != nil {
			logger.Error("script load failed", "error", err, "path", c.Path)
			onEvent(CommandFailed{Command: cmd, Err: err, At: now})
			return
		}
		logger.Info("script loaded", "path", c.Path, "bytes", len(text))
		onEvent(ScriptLoaded{Path: c.Path, Text: text, At: now})

	case CmdWatchScript:
		if env == nil || env.watcher == nil {
			return
		}
		if err := env.watcher.Watch(c.Path); err != nil {
			logger.Warn("script watch failed", "error", err, "path", c.Path)
			onEvent(CommandFailed{Command: cmd, Err: err, At: now})
		}

	case CmdExportScript:
		if err := writeScriptFile(c.Path, c.Text); err != nil {
			logger.Error("script export failed", "error", err, "path", c.Path)
			onEvent(CommandFailed{Command: cmd, Err: err, At: now})
			return
		}
		logger.Info("script exported", "path", c.Path, "bytes", len(c.Text))

	case CmdPublishStateSnapshot:
		if c.Reply == nil {
			logger.Warn("state snapshot requested with nil reply channel")
			return
		}

		select {
		case c.Reply <- c.Snapshot:
		default:
			logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}

	default:
		logger.Warn("unknown command type", "command", cmd.String())
		onEvent(CommandFailed{
			Command: cmd,
			Err:     errUnknownCommand{cmd: cmd},
			At:      now,
		})
	}
}

type errUnknownCommand struct {
	cmd Command
}

func (e errUnknownCommand) Error() string { return "unknown command: " + e.cmd.String() }
