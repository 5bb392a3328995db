package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// ws_listen connects to the notchprompt state WebSocket and prints what it
// receives. Frames are summarized (they arrive up to 20 times per second);
// everything else is printed in full.

type message struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

func main() {
	var (
		wsURL   = flag.String("ws", "ws://127.0.0.1:3011/ws/state", "notchprompt state websocket URL")
		frames  = flag.Bool("frames", false, "Print every frame instead of one line per second")
		command = flag.String("cmd", "", "Send one command envelope (JSON) after connecting, e.g. '{\"type\":\"toggle\"}'")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// Mutex to protect concurrent writes to websocket
	var writeMu sync.Mutex

	// The server pings every 20s; answer within its pong window.
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	if *command != "" {
		if !json.Valid([]byte(*command)) {
			log.Fatalf("-cmd is not valid JSON")
		}
		writeMu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, []byte(*command))
		writeMu.Unlock()
		if err != nil {
			log.Fatalf("failed to send command: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		var lastFramePrint time.Time
		for {
			messageType, raw, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			if messageType != websocket.TextMessage {
				fmt.Printf("[BINARY] %d bytes\n", len(raw))
				continue
			}

			var msg message
			if err := json.Unmarshal(raw, &msg); err != nil {
				fmt.Printf("[TEXT] %s\n", string(raw))
				continue
			}

			if msg.Type == "frame" && !*frames {
				if time.Since(lastFramePrint) < time.Second {
					continue
				}
				lastFramePrint = time.Now()
			}
			printMessage(msg)
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

func printMessage(msg message) {
	ts := ""
	if msg.Ts != nil {
		ts = msg.Ts.Local().Format("15:04:05.000") + " "
	}

	switch msg.Type {
	case "frame":
		var f struct {
			CopyCount   int     `json:"copy_count"`
			StackOffset float64 `json:"stack_offset"`
			Phase       float64 `json:"phase"`
		}
		if json.Unmarshal(msg.Data, &f) == nil {
			fmt.Printf("%s[FRAME] phase=%.1f offset=%.1f copies=%d\n", ts, f.Phase, f.StackOffset, f.CopyCount)
			return
		}

	case "playback_changed":
		var p struct {
			Status             string `json:"status"`
			CountdownRemaining int    `json:"countdown_remaining"`
			ReachedEnd         bool   `json:"reached_end"`
			Suspended          bool   `json:"suspended"`
		}
		if json.Unmarshal(msg.Data, &p) == nil {
			fmt.Printf("%s[PLAYBACK] %s countdown=%d end=%t suspended=%t\n", ts, p.Status, p.CountdownRemaining, p.ReachedEnd, p.Suspended)
			return
		}

	case "content_changed", "state_init":
		// These carry the whole script; print everything but the text.
		var m map[string]any
		if json.Unmarshal(msg.Data, &m) == nil {
			for _, k := range []string{"text", "script_text"} {
				if s, ok := m[k].(string); ok {
					m[k] = fmt.Sprintf("<%d bytes>", len(s))
				}
			}
			pretty, _ := json.MarshalIndent(m, "", "  ")
			fmt.Printf("%s[%s]\n%s\n", ts, msg.Type, pretty)
			return
		}
	}

	fmt.Printf("%s[%s] %s\n", ts, msg.Type, string(msg.Data))
}
