package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"
)

// ============================================================================
// notchprompt-ctl - Command-line IPC Client
// ============================================================================
// Sends commands to the notchprompt daemon over its Unix socket.
//
// Usage:
//   notchprompt-ctl toggle
//   notchprompt-ctl speed 120
//   notchprompt-ctl paste
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/notchprompt.sock)
// ============================================================================

const defaultSocketPath = "/tmp/notchprompt.sock"

// envelope mirrors the daemon's command envelope.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ipcResponse mirrors the daemon's response. State is kept raw; only the
// fields the client prints are decoded.
type ipcResponse struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	State  json.RawMessage `json:"state,omitempty"`
}

type stateView struct {
	Status             string  `json:"status"`
	CountdownRemaining int     `json:"countdown_remaining"`
	ReachedEnd         bool    `json:"reached_end"`
	SpeedPointsPerSec  float64 `json:"speed_points_per_sec"`
	FontSize           float64 `json:"font_size"`
	ScrollMode         string  `json:"scroll_mode"`
	ScriptPath         string  `json:"script_path"`
	ScriptText         string  `json:"script_text"`
	Phase              float64 `json:"phase"`
}

func main() {
	socketPath := defaultSocketPath
	if env := os.Getenv("NOTCHPROMPT_SOCKET"); env != "" {
		socketPath = env
	}

	args := os.Args[1:]
	if len(args) > 0 && (args[0] == "-socket" || args[0] == "--socket") {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if err := run(socketPath, args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(socketPath string, args []string) error {
	switch args[0] {
	case "help", "-h", "--help":
		printUsage()
		return nil

	case "status":
		st, err := fetchState(socketPath)
		if err != nil {
			return err
		}
		printState(st)
		return nil

	case "copy":
		st, err := fetchState(socketPath)
		if err != nil {
			return err
		}
		if err := clipboard.WriteAll(st.ScriptText); err != nil {
			return fmt.Errorf("write clipboard: %w", err)
		}
		fmt.Printf("copied %d bytes\n", len(st.ScriptText))
		return nil
	}

	env, err := buildCommand(args, clipboard.ReadAll)
	if err != nil {
		return err
	}
	if _, err := send(socketPath, env); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

// buildCommand translates command-line arguments into a command envelope.
func buildCommand(args []string, readClipboard func() (string, error)) (envelope, error) {
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "start", "stop", "pause", "toggle", "reset":
		return envelope{Type: cmd}, nil

	case "back", "jump-back":
		data := map[string]any{}
		if len(rest) > 0 {
			v, err := parsePositive(rest[0], "seconds")
			if err != nil {
				return envelope{}, err
			}
			data["seconds"] = v
		}
		return withData("jump_back", data)

	case "speed":
		if len(rest) < 1 {
			return envelope{}, errors.New("speed requires a value in points per second")
		}
		v, err := parsePositive(rest[0], "speed")
		if err != nil {
			return envelope{}, err
		}
		return withData("set_speed", map[string]any{"points_per_second": v})

	case "faster":
		return withData("adjust_speed", map[string]any{"steps": 1})

	case "slower":
		return withData("adjust_speed", map[string]any{"steps": -1})

	case "mode":
		if len(rest) < 1 {
			return envelope{}, errors.New("mode requires infinite or stop_at_end")
		}
		return withData("set_scroll_mode", map[string]any{"mode": rest[0]})

	case "font":
		if len(rest) < 1 {
			return envelope{}, errors.New("font requires a size in points")
		}
		v, err := parsePositive(rest[0], "font size")
		if err != nil {
			return envelope{}, err
		}
		return withData("set_font_size", map[string]any{"size": v})

	case "countdown":
		if len(rest) < 1 {
			return envelope{}, errors.New("countdown requires seconds")
		}
		n, err := strconv.Atoi(rest[0])
		if err != nil || n < 0 {
			return envelope{}, fmt.Errorf("invalid countdown seconds: %q", rest[0])
		}
		data := map[string]any{"seconds": n}
		if len(rest) > 1 {
			data["policy"] = rest[1]
		}
		return withData("set_countdown", data)

	case "load":
		if len(rest) < 1 {
			return envelope{}, errors.New("load requires a path")
		}
		return withData("load_script", map[string]any{"path": absPath(rest[0])})

	case "export":
		if len(rest) < 1 {
			return envelope{}, errors.New("export requires a path")
		}
		return withData("export_script", map[string]any{"path": absPath(rest[0])})

	case "text":
		if len(rest) < 1 {
			return envelope{}, errors.New("text requires the script text")
		}
		return withData("set_text", map[string]any{"text": strings.Join(rest, " ")})

	case "paste":
		text, err := readClipboard()
		if err != nil {
			return envelope{}, fmt.Errorf("read clipboard: %w", err)
		}
		if strings.TrimSpace(text) == "" {
			return envelope{}, errors.New("clipboard is empty")
		}
		return withData("set_text", map[string]any{"text": text})

	default:
		return envelope{}, fmt.Errorf("unknown command: %s", cmd)
	}
}

func withData(typ string, data map[string]any) (envelope, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return envelope{}, fmt.Errorf("marshal %s: %w", typ, err)
	}
	return envelope{Type: typ, Data: b}, nil
}

func parsePositive(s, what string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", what, s)
	}
	return v, nil
}

// absPath resolves relative paths against the caller's directory; the daemon
// has its own working directory.
func absPath(p string) string {
	if p == "" || p[0] == '/' || p[0] == '~' {
		return p
	}
	wd, err := os.Getwd()
	if err != nil {
		return p
	}
	return wd + "/" + p
}

func fetchState(socketPath string) (stateView, error) {
	resp, err := send(socketPath, envelope{Type: "get_state"})
	if err != nil {
		return stateView{}, err
	}
	var st stateView
	if err := json.Unmarshal(resp.State, &st); err != nil {
		return stateView{}, fmt.Errorf("decode state: %w", err)
	}
	return st, nil
}

func send(socketPath string, env envelope) (ipcResponse, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return ipcResponse{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := json.Marshal(env)
	if err != nil {
		return ipcResponse{}, fmt.Errorf("marshal command: %w", err)
	}

	// Line-delimited JSON
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return ipcResponse{}, fmt.Errorf("send command: %w", err)
	}

	var resp ipcResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return ipcResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status == "error" {
		return resp, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return resp, nil
}

func printState(st stateView) {
	fmt.Printf("status:    %s", st.Status)
	if st.Status == "counting_down" {
		fmt.Printf(" (%d)", st.CountdownRemaining)
	}
	if st.ReachedEnd {
		fmt.Print(" [end]")
	}
	fmt.Println()
	fmt.Printf("speed:     %.0f pt/s\n", st.SpeedPointsPerSec)
	fmt.Printf("font:      %.0f pt\n", st.FontSize)
	fmt.Printf("mode:      %s\n", st.ScrollMode)
	fmt.Printf("phase:     %.1f\n", st.Phase)
	if st.ScriptPath != "" {
		fmt.Printf("script:    %s\n", st.ScriptPath)
	}
	fmt.Printf("length:    %d bytes\n", len(st.ScriptText))
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `notchprompt-ctl - Control the notchprompt daemon via IPC

Usage:
  notchprompt-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: %s, or $NOTCHPROMPT_SOCKET)

Commands:
  start | stop | toggle | reset
  back [seconds]              Jump back (default: configured jump-back)
  speed <pt/s>                Set scroll speed
  faster | slower             Adjust speed by one step
  mode <infinite|stop_at_end> Set scroll mode
  font <points>               Set font size
  countdown <sec> [policy]    Policy: always, fresh_start_only, never
  load <path>                 Load and watch a script file
  export <path>               Write the script to a file
  text <words...>             Replace the script text
  paste                       Replace the script with the clipboard
  copy                        Copy the script to the clipboard
  status                      Print the daemon state

Examples:
  notchprompt-ctl load ~/talks/keynote.md
  notchprompt-ctl countdown 5 always
  notchprompt-ctl -socket /run/notchprompt.sock toggle
`, defaultSocketPath)
}
