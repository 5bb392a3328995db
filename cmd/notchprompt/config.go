package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the notchprompt daemon.
//
// Keep defaults and validation centralized so the rest of the code can assume a
// well-formed config.
//
// Design goals:
// - Make config file the primary configuration surface.
// - Keep flags for small overrides and for environments where a file is awkward.
type Config struct {
	// Initial prompter settings
	Prompter PrompterConfig `yaml:"prompter"`

	// Script loaded at startup
	Script ScriptConfig `yaml:"script"`

	// Virtual viewport used when no terminal is attached
	Headless HeadlessConfig `yaml:"headless"`

	// Presenter clickers / keyboards (evdev)
	Input InputConfig `yaml:"input"`

	// IPC configuration (notchprompt-ctl)
	IPC IPCConfig `yaml:"ipc"`

	// HTTP server (state WebSocket + command endpoint)
	HTTP HTTPConfig `yaml:"http"`

	// Tick cadence
	Tick TickConfig `yaml:"tick"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type PrompterConfig struct {
	SpeedPointsPerSec float64 `yaml:"speed"`
	FontSize          float64 `yaml:"font_size"`
	ScrollMode        string  `yaml:"scroll_mode"`
	LoopGap           float64 `yaml:"loop_gap"`
	CountdownSeconds  int     `yaml:"countdown_seconds"`
	CountdownPolicy   string  `yaml:"countdown_policy"`
	JumpBackSeconds   float64 `yaml:"jump_back_seconds"`
}

type ScriptConfig struct {
	Path  string `yaml:"path,omitempty"`
	Watch bool   `yaml:"watch"`
}

type HeadlessConfig struct {
	Cols int `yaml:"cols"`
	Rows int `yaml:"rows"`
}

type InputConfig struct {
	Devices []string `yaml:"devices,omitempty"` // empty disables evdev input
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type HTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type TickConfig struct {
	ActiveHz int `yaml:"active_hz"`
	IdleHz   int `yaml:"idle_hz"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"` // used while the TUI owns the terminal
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go defaults.
func DefaultConfig() Config {
	return Config{
		Prompter: PrompterConfig{
			SpeedPointsPerSec: defaultSpeedPointsPerSec,
			FontSize:          defaultFontSize,
			ScrollMode:        string(ScrollModeInfinite),
			LoopGap:           defaultLoopGap,
			CountdownSeconds:  defaultCountdownSeconds,
			CountdownPolicy:   string(CountdownFreshStartOnly),
			JumpBackSeconds:   defaultJumpBackSeconds,
		},
		Script: ScriptConfig{
			Watch: true,
		},
		Headless: HeadlessConfig{
			Cols: defaultHeadlessCols,
			Rows: defaultHeadlessRows,
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/notchprompt.sock",
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Port:    3011,
		},
		Tick: TickConfig{
			ActiveHz: defaultActiveHz,
			IdleHz:   defaultIdleHz,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "~/.notchprompt/notchprompt.log",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file.
//
// Notes:
//   - The file must be valid YAML.
//   - Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Ensure there's no trailing garbage (only whitespace/comments are allowed after the document).
	var extra yaml.Node
	if err := dec.Decode(&extra); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	} else if !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	return cfg, nil
}

// FlagOverrides applies overrides from flags on top of a loaded config.
//
// Flags should pass pointers; each override is only applied if the flag was
// set on the command line. main.go decides which flags exist.
type FlagOverrides struct {
	Speed            *float64
	FontSize         *float64
	ScrollMode       *string
	LoopGap          *float64
	CountdownSeconds *int
	CountdownPolicy  *string

	ScriptPath  *string
	ScriptWatch *bool

	InputDevice *string

	IPCSocketPath *string
	HTTPEnabled   *bool
	HTTPPort      *int

	LogLevel *string
	LogFile  *string
}

// Apply merges the overrides into cfg. If an override pointer is nil, it is ignored.
// If the pointer is non-nil, the value is applied (even if it is a “zero value”).
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}

	if o.Speed != nil {
		cfg.Prompter.SpeedPointsPerSec = *o.Speed
	}
	if o.FontSize != nil {
		cfg.Prompter.FontSize = *o.FontSize
	}
	if o.ScrollMode != nil {
		cfg.Prompter.ScrollMode = *o.ScrollMode
	}
	if o.LoopGap != nil {
		cfg.Prompter.LoopGap = *o.LoopGap
	}
	if o.CountdownSeconds != nil {
		cfg.Prompter.CountdownSeconds = *o.CountdownSeconds
	}
	if o.CountdownPolicy != nil {
		cfg.Prompter.CountdownPolicy = *o.CountdownPolicy
	}

	if o.ScriptPath != nil {
		cfg.Script.Path = *o.ScriptPath
	}
	if o.ScriptWatch != nil {
		cfg.Script.Watch = *o.ScriptWatch
	}

	if o.InputDevice != nil {
		if *o.InputDevice == "" {
			cfg.Input.Devices = nil
		} else {
			cfg.Input.Devices = []string{*o.InputDevice}
		}
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPEnabled != nil {
		cfg.HTTP.Enabled = *o.HTTPEnabled
	}
	if o.HTTPPort != nil {
		cfg.HTTP.Port = *o.HTTPPort
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	if o.LogFile != nil {
		cfg.Logging.File = *o.LogFile
	}
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Prompter
	p := c.Prompter
	if p.SpeedPointsPerSec < minSpeedPointsPerSec || p.SpeedPointsPerSec > maxSpeedPointsPerSec {
		return fmt.Errorf("prompter.speed must be between %g and %g", minSpeedPointsPerSec, maxSpeedPointsPerSec)
	}
	if p.FontSize < minFontSize || p.FontSize > maxFontSize {
		return fmt.Errorf("prompter.font_size must be between %g and %g", minFontSize, maxFontSize)
	}
	if _, ok := ParseScrollMode(p.ScrollMode); !ok {
		return fmt.Errorf("prompter.scroll_mode must be %q or %q", ScrollModeInfinite, ScrollModeStopAtEnd)
	}
	if p.LoopGap < 0 {
		return errors.New("prompter.loop_gap must be >= 0")
	}
	if p.CountdownSeconds < 0 || p.CountdownSeconds > maxCountdownSeconds {
		return fmt.Errorf("prompter.countdown_seconds must be between 0 and %d", maxCountdownSeconds)
	}
	if !CountdownPolicy(p.CountdownPolicy).valid() {
		return fmt.Errorf("prompter.countdown_policy must be %q, %q or %q",
			CountdownAlways, CountdownFreshStartOnly, CountdownNever)
	}
	if p.JumpBackSeconds <= 0 {
		return errors.New("prompter.jump_back_seconds must be > 0")
	}

	// Headless viewport
	if c.Headless.Cols <= 0 || c.Headless.Rows <= 0 {
		return errors.New("headless.cols and headless.rows must be > 0")
	}

	// Input devices
	for i, dev := range c.Input.Devices {
		if dev == "" {
			return fmt.Errorf("input.devices[%d] is empty", i)
		}
	}

	// IPC
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	// HTTP
	if c.HTTP.Enabled && (c.HTTP.Port <= 0 || c.HTTP.Port > 65535) {
		return errors.New("http.port must be between 1 and 65535")
	}

	// Tick
	if c.Tick.ActiveHz <= 0 || c.Tick.ActiveHz > 240 {
		return errors.New("tick.active_hz must be between 1 and 240")
	}
	if c.Tick.IdleHz <= 0 || c.Tick.IdleHz > c.Tick.ActiveHz {
		return errors.New("tick.idle_hz must be between 1 and tick.active_hz")
	}

	// Logging
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}

	return nil
}

// ToPrompterSettings converts the validated file config into reducer settings.
func (c *Config) ToPrompterSettings() PrompterSettings {
	mode, _ := ParseScrollMode(c.Prompter.ScrollMode)
	return PrompterSettings{
		SpeedPointsPerSec: c.Prompter.SpeedPointsPerSec,
		FontSize:          c.Prompter.FontSize,
		ScrollMode:        mode,
		LoopGap:           c.Prompter.LoopGap,
		CountdownSeconds:  c.Prompter.CountdownSeconds,
		CountdownPolicy:   CountdownPolicy(c.Prompter.CountdownPolicy),
		JumpBackSeconds:   c.Prompter.JumpBackSeconds,
	}
}

// ToDaemonConfig converts the tick section into the loop configuration.
func (c *Config) ToDaemonConfig() DaemonConfig {
	cfg := DefaultDaemonConfig()
	cfg.ActiveInterval = time.Second / time.Duration(c.Tick.ActiveHz)
	cfg.IdleInterval = time.Second / time.Duration(c.Tick.IdleHz)
	return cfg
}

// ExpandPath expands a leading "~" in a path using $HOME.
// This is handy for config values like script.path and logging.file.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
