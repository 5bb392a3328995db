package main

import (
	"context"
	"log/slog"
	"time"
)

// ============================================================================
// Central Daemon Loop
// ============================================================================
//
// Design rules enforced here:
//   - The reducer performs no I/O and computes: next state + commands + broadcasts.
//   - The daemon loop is the only place that executes side effects.
//   - Effect results are turned into Events and fed back into the reducer.
//   - Incoming events are queued and reduced at the start of the next tick,
//     before the scroll engine steps, so commands never interleave with a tick.
//   - The tick timer runs fast while animating, slow while waiting on a
//     suspended prompter, and is stopped entirely otherwise.
//
// ============================================================================

// DaemonConfig configures the daemon loop.
type DaemonConfig struct {
	ActiveInterval time.Duration
	IdleInterval   time.Duration
	Tuning         ScrollTuning
}

// DefaultDaemonConfig returns a 60 Hz / 8 Hz cadence with default tuning.
func DefaultDaemonConfig() DaemonConfig {
	return DaemonConfig{
		ActiveInterval: time.Second / defaultActiveHz,
		IdleInterval:   time.Second / defaultIdleHz,
		Tuning:         DefaultScrollTuning(),
	}
}

// tickCadence picks the tick interval for the state after a tick.
// Zero means the timer should be stopped.
func tickCadence(s *PrompterState, cfg DaemonConfig) time.Duration {
	switch {
	case s.Playback.IsRunning() && !s.Suspended:
		return cfg.ActiveInterval
	case !s.Scroll.Settled():
		// Still easing toward a stop.
		return cfg.ActiveInterval
	case s.Playback.Status == StatusCountingDown:
		return cfg.IdleInterval
	case s.Playback.IsRunning() && s.Suspended:
		return cfg.IdleInterval
	default:
		return 0
	}
}

// runDaemon is the main daemon loop. It:
//   - Receives Events from multiple sources (TUI, IPC, HTTP, input devices, watcher)
//   - Emits Tick events at an adaptive cadence
//   - Reduces events into (state, commands, broadcasts)
//   - Executes commands and feeds observations back into the reducer
//   - Publishes broadcasts to observers
//
// Shutdown semantics:
//   - Exits when ctx is canceled
//   - Exits cleanly when the events channel is closed
func runDaemon(
	ctx context.Context,
	events <-chan Event,
	state *PrompterState,
	cfg DaemonConfig,
	clock Clock,
	fx *effectEnv,
	publish func(StateBroadcast),
	logger *slog.Logger,
) {
	if state == nil {
		logger.Error("daemon state is nil")
		return
	}
	if clock == nil {
		clock = realClock{}
	}
	if publish == nil {
		publish = func(StateBroadcast) {}
	}

	// pending holds events received since the last tick.
	// eventQueue holds events awaiting reduction within a tick.
	// cmdQueue holds commands awaiting execution.
	var pending []Event
	var eventQueue []Event
	var cmdQueue []Command

	enqueueEvent := func(ev Event) {
		eventQueue = append(eventQueue, ev)
	}

	flushEvents := func() {
		for len(eventQueue) > 0 {
			ev := eventQueue[0]
			eventQueue = eventQueue[1:]

			rr := Reduce(state, ev, cfg.Tuning)
			if rr.State != nil {
				state = rr.State
			}
			cmdQueue = append(cmdQueue, rr.Commands...)
			for _, b := range rr.Broadcasts {
				publish(b)
			}
		}
	}

	flushCommands := func() {
		for len(cmdQueue) > 0 {
			cmd := cmdQueue[0]
			cmdQueue = cmdQueue[1:]

			runEffect(fx, cmd, logger, enqueueEvent)

			// Observations are reduced promptly so follow-up commands run in
			// the same tick.
			flushEvents()
		}
	}

	var (
		ticker   Ticker
		tickC    <-chan time.Time
		interval time.Duration
		lastTick time.Time
	)

	setCadence := func(d time.Duration) {
		if d == interval {
			return
		}
		if ticker != nil {
			ticker.Stop()
			ticker = nil
			tickC = nil
		}
		wasStopped := interval == 0
		interval = d
		if d <= 0 {
			logger.Debug("tick timer stopped")
			return
		}
		if wasStopped {
			pending = append([]Event{TimerRearmed{}}, pending...)
		}
		ticker = clock.NewTicker(d)
		tickC = ticker.C()
		logger.Debug("tick cadence", "interval", d)
	}
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	// Start with one tick so initial metrics and frames are published.
	setCadence(cfg.ActiveInterval)

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return

		case ev, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				return
			}
			if eventTypeName(ev) != "" {
				if logger.Enabled(ctx, slog.LevelDebug) {
					if b, err := MarshalEvent(ev); err == nil {
						logger.Debug("action queued", "action", string(b))
					}
				}
				ev = TimedEvent{Event: ev, At: clock.Now()}
			}
			pending = append(pending, ev)
			if interval == 0 {
				setCadence(cfg.ActiveInterval)
			}

		case now := <-tickC:
			dt := 0.0
			if !lastTick.IsZero() {
				dt = now.Sub(lastTick).Seconds()
			}
			lastTick = now

			for _, ev := range pending {
				enqueueEvent(ev)
			}
			pending = pending[:0]
			enqueueEvent(Tick{Now: now, Dt: dt})
			flushEvents()
			flushCommands()

			next := tickCadence(state, cfg)
			if next == 0 && len(pending) > 0 {
				next = cfg.ActiveInterval
			}
			setCadence(next)
		}
	}
}
