package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "charm.land/bubbletea/v2"
	"golang.org/x/term"
)

const version = "0.3.0"

const defaultConfigPath = "~/.notchprompt/config.yaml"

func printVersion() {
	fmt.Printf("notchprompt v%s\n", version)
	fmt.Println("Terminal teleprompter with a remote-controllable scroll engine")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  notchprompt [OPTIONS] [SCRIPT]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Scrolls a script smoothly through the terminal. Playback can be driven")
	fmt.Println("  from the keyboard, presenter clickers (evdev), notchprompt-ctl over the")
	fmt.Println("  IPC socket, or HTTP. Observers follow the state over a WebSocket.")
	fmt.Println("  Without a terminal (or with -headless) the engine runs on a virtual")
	fmt.Println("  viewport and only the remote surfaces are available.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Printf("        YAML config file (default %q if it exists)\n", defaultConfigPath)
	fmt.Println("  -script string")
	fmt.Println("        Script file to load and watch (also accepted as the first argument)")
	fmt.Println("  -watch")
	fmt.Println("        Reload the script when the file changes (default true)")
	fmt.Println("  -speed float")
	fmt.Printf("        Scroll speed in points per second (default %.0f)\n", defaultSpeedPointsPerSec)
	fmt.Println("  -font-size float")
	fmt.Printf("        Font size in points (default %.0f)\n", defaultFontSize)
	fmt.Println("  -scroll-mode string")
	fmt.Println("        infinite or stop_at_end (default \"infinite\")")
	fmt.Println("  -loop-gap float")
	fmt.Printf("        Gap between copies in infinite mode, in points (default %.0f)\n", defaultLoopGap)
	fmt.Println("  -countdown int")
	fmt.Printf("        Countdown seconds before playback starts (default %d)\n", defaultCountdownSeconds)
	fmt.Println("  -countdown-policy string")
	fmt.Println("        always, fresh_start_only or never (default \"fresh_start_only\")")
	fmt.Println("  -input-device string")
	fmt.Println("        Linux input event device for a presenter clicker (e.g. /dev/input/event5)")
	fmt.Println("  -ipc-socket string")
	fmt.Println("        Unix domain socket path for IPC (default \"/tmp/notchprompt.sock\")")
	fmt.Println("  -http")
	fmt.Println("        Serve the state WebSocket and command endpoint (default true)")
	fmt.Println("  -http-port int")
	fmt.Println("        HTTP listener port (default 3011)")
	fmt.Println("  -headless")
	fmt.Println("        Do not start the terminal UI")
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println("  -log-file string")
	fmt.Println("        Log file used while the terminal UI is active (default \"~/.notchprompt/notchprompt.log\")")
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  notchprompt ~/talks/keynote.md")
	fmt.Println("  notchprompt -scroll-mode stop_at_end -countdown 5 script.txt")
	fmt.Println("  notchprompt -headless -input-device /dev/input/event5")
	fmt.Println()
}

func main() {
	// Check for version flag early
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath      = flag.String("config", "", "YAML config file")
		scriptPath      = flag.String("script", "", "Script file to load and watch")
		scriptWatch     = flag.Bool("watch", true, "Reload the script when the file changes")
		speed           = flag.Float64("speed", defaultSpeedPointsPerSec, "Scroll speed in points per second")
		fontSize        = flag.Float64("font-size", defaultFontSize, "Font size in points")
		scrollMode      = flag.String("scroll-mode", string(ScrollModeInfinite), "infinite or stop_at_end")
		loopGap         = flag.Float64("loop-gap", defaultLoopGap, "Gap between copies in points")
		countdown       = flag.Int("countdown", defaultCountdownSeconds, "Countdown seconds")
		countdownPolicy = flag.String("countdown-policy", string(CountdownFreshStartOnly), "always, fresh_start_only or never")
		inputDevice     = flag.String("input-device", "", "Linux input event device for a presenter clicker")
		ipcSocketPath   = flag.String("ipc-socket", "/tmp/notchprompt.sock", "Unix domain socket path for IPC")
		httpEnabled     = flag.Bool("http", true, "Serve the state WebSocket and command endpoint")
		httpPort        = flag.Int("http-port", 3011, "HTTP listener port")
		headless        = flag.Bool("headless", false, "Do not start the terminal UI")
		logLevelStr     = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		logFile         = flag.String("log-file", "", "Log file used while the terminal UI is active")
		showVersion     = flag.Bool("version", false, "Print version and exit")
		showHelp        = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	// Config: defaults, then file, then explicitly set flags.
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	var ov FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "script":
			ov.ScriptPath = scriptPath
		case "watch":
			ov.ScriptWatch = scriptWatch
		case "speed":
			ov.Speed = speed
		case "font-size":
			ov.FontSize = fontSize
		case "scroll-mode":
			ov.ScrollMode = scrollMode
		case "loop-gap":
			ov.LoopGap = loopGap
		case "countdown":
			ov.CountdownSeconds = countdown
		case "countdown-policy":
			ov.CountdownPolicy = countdownPolicy
		case "input-device":
			ov.InputDevice = inputDevice
		case "ipc-socket":
			ov.IPCSocketPath = ipcSocketPath
		case "http":
			ov.HTTPEnabled = httpEnabled
		case "http-port":
			ov.HTTPPort = httpPort
		case "log-level":
			ov.LogLevel = logLevelStr
		case "log-file":
			ov.LogFile = logFile
		}
	})
	if flag.NArg() > 0 && ov.ScriptPath == nil {
		p := flag.Arg(0)
		ov.ScriptPath = &p
	}
	ov.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	useTUI := !*headless && term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))

	// The TUI owns the terminal; logs go to a file.
	var logOut io.Writer = os.Stdout
	if useTUI {
		lf, err := openLogFile(cfg.Logging.File)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v; logging disabled\n", err)
			logOut = io.Discard
		} else {
			defer lf.Close()
			logOut = lf
		}
	}
	logger := setupLogger(logLevel, logOut)

	if err := run(cfg, useTUI, logger); err != nil {
		logger.Error("notchprompt stopped", "error", err)
		if useTUI {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

// loadConfig returns defaults overlaid with the config file, if any. The
// default path is optional; an explicit path must exist.
func loadConfig(path string) (Config, error) {
	if path != "" {
		return LoadConfigFile(path)
	}
	if _, err := os.Stat(ExpandPath(defaultConfigPath)); err == nil {
		return LoadConfigFile(defaultConfigPath)
	}
	return DefaultConfig(), nil
}

func run(cfg Config, useTUI bool, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Central event bus
	events := make(chan Event, 256)

	state := NewPrompterState(cfg.ToPrompterSettings(), defaultScript, "")
	initial := state.Snapshot()

	// Seed the loop before it starts; these are reduced on the first tick.
	if !useTUI {
		events <- ViewportResized{Cols: cfg.Headless.Cols, Rows: cfg.Headless.Rows}
	}
	if cfg.Script.Path != "" {
		events <- LoadScript{Path: cfg.Script.Path}
	}

	var wg sync.WaitGroup
	goRun := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error(name+" stopped", "error", err)
			}
		}()
	}

	// Script watcher
	fx := &effectEnv{}
	if cfg.Script.Watch {
		w, err := newScriptWatcher(func(path string) {
			select {
			case events <- ScriptFileChanged{Path: path, At: time.Now()}:
			default:
				logger.Warn("event queue full, dropping script change", "path", path)
			}
		}, logger)
		if err != nil {
			logger.Warn("script watcher unavailable", "error", err)
		} else {
			defer w.Close()
			fx.watcher = w
			goRun("script watcher", func() error { return w.Run(ctx) })
		}
	}

	// Broadcast fan-out: WebSocket clients and the TUI each get their own
	// relay so neither can stall the daemon loop.
	var wsRelay, tuiRelay *broadcastRelay
	if cfg.HTTP.Enabled {
		wsRelay = newBroadcastRelay(256, logger)
		goRun("ws relay", func() error { wsRelay.Run(ctx); return nil })
	}
	if useTUI {
		tuiRelay = newBroadcastRelay(256, logger)
		goRun("tui relay", func() error { tuiRelay.Run(ctx); return nil })
	}
	publish := fanOut(wsRelay, tuiRelay)

	// Daemon loop
	goRun("daemon", func() error {
		runDaemon(ctx, events, state, cfg.ToDaemonConfig(), realClock{}, fx, publish, logger)
		return nil
	})

	// IPC server
	goRun("IPC server", func() error {
		return runIPCServer(ctx, ExpandPath(cfg.IPC.SocketPath), events, logger)
	})

	// HTTP: state WebSocket + command endpoint
	if cfg.HTTP.Enabled {
		ws := NewServer(ctx, logger, events, ServerConfig{AcceptCommands: true})
		goRun("ws hub", func() error { ws.Hub().Run(ctx); return nil })
		goRun("ws broadcaster", func() error {
			RunBroadcaster(ctx, ws.Hub(), wsRelay.Out(), logger)
			return nil
		})
		mux := newHTTPMux(ws, events, logger)
		goRun("http server", func() error { return runHTTPServer(ctx, cfg.HTTP.Port, mux, logger) })
	}

	// Presenter clickers
	if len(cfg.Input.Devices) > 0 {
		goRun("input", func() error { return runInputDevices(ctx, cfg.Input.Devices, events, logger) })
	}

	logger.Info("notchprompt started",
		"version", version,
		"tui", useTUI,
		"ipc", cfg.IPC.SocketPath,
		"http", cfg.HTTP.Enabled,
		"http_port", cfg.HTTP.Port,
		"script", cfg.Script.Path,
		"input_devices", len(cfg.Input.Devices))

	var runErr error
	if useTUI {
		runErr = runTUI(ctx, events, initial, tuiRelay.Out())
		stop()
	} else {
		<-ctx.Done()
	}

	logger.Info("shutting down")
	wg.Wait()
	return runErr
}

// runTUI runs the terminal UI until the user quits or ctx is canceled.
func runTUI(ctx context.Context, events chan<- Event, initial StateSnapshot, broadcasts <-chan StateBroadcast) error {
	p := tea.NewProgram(newTUIModel(events, initial), tea.WithFilter(throttleMouse()), tea.WithContext(ctx))

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case b := <-broadcasts:
				p.Send(b)
			}
		}
	}()

	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		// Killed by shutdown.
		return nil
	}
	return err
}

// throttleMouse drops repeated motion events at the same cell.
func throttleMouse() func(tea.Model, tea.Msg) tea.Msg {
	var lastX, lastY = -1, -1
	return func(_ tea.Model, msg tea.Msg) tea.Msg {
		if mm, ok := msg.(tea.MouseMotionMsg); ok {
			if mm.X == lastX && mm.Y == lastY {
				return nil
			}
			lastX, lastY = mm.X, mm.Y
		}
		return msg
	}
}
