package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// State WebSocket: hub + per-client pumps + broadcaster
// ============================================================================
//
// Observers (overlay renderers, stream deck plugins, ws_listen) connect to
// /ws/state and receive:
//   - "state_init" once, with a StateSnapshot taken by the daemon loop
//   - "frame" at most once per frameCoalesceWindow (latest wins)
//   - "playback_changed", "reached_end", "content_changed", "settings_changed",
//     "error" as they happen
//
// Clients may also send command envelopes ({"type": ..., "data": ...}) as text
// frames; each is answered with a "command_result" message. A renderer uses this
// to report its own measurements with "metrics_observed".
//
// PrompterState stays daemon-owned. Slow clients are disconnected when their
// send buffer fills.
// ============================================================================

// wsFrameData is the JSON `data` payload for "frame".
type wsFrameData struct {
	CopyCount     int     `json:"copy_count"`
	StackOffset   float64 `json:"stack_offset"`
	Phase         float64 `json:"phase"`
	VisibleOffset float64 `json:"visible_offset"`
	VisibleCopies int     `json:"visible_copies,omitempty"`
}

// wsPlaybackData is the JSON `data` payload for "playback_changed".
type wsPlaybackData struct {
	Status             PlaybackStatus `json:"status"`
	CountdownRemaining int            `json:"countdown_remaining"`
	ReachedEnd         bool           `json:"reached_end"`
	Suspended          bool           `json:"suspended"`
}

// wsReachedEndData is the JSON `data` payload for "reached_end".
type wsReachedEndData struct {
	Phase float64 `json:"phase"`
}

// wsContentData is the JSON `data` payload for "content_changed".
type wsContentData struct {
	Text          string  `json:"text"`
	Path          string  `json:"path,omitempty"`
	LineHeight    float64 `json:"line_height"`
	ContentHeight float64 `json:"content_height"`
}

// wsSettingsData is the JSON `data` payload for "settings_changed".
type wsSettingsData struct {
	SpeedPointsPerSec float64         `json:"speed_points_per_sec"`
	FontSize          float64         `json:"font_size"`
	ScrollMode        ScrollMode      `json:"scroll_mode"`
	LoopGap           float64         `json:"loop_gap"`
	CountdownSeconds  int             `json:"countdown_seconds"`
	CountdownPolicy   CountdownPolicy `json:"countdown_policy"`
}

// wsErrorData is the JSON `data` payload for "error".
type wsErrorData struct {
	Message string `json:"message"`
}

// wsOutboundEvent is a typed, externally consumable state event.
type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time // zero means "now"
}

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func marshalEnvelope(typ string, at time.Time, data any) ([]byte, error) {
	if at.IsZero() {
		at = time.Now()
	}
	ts := at.UTC()
	return json.Marshal(envelope{Type: typ, Ts: &ts, Data: data})
}

// ============================================================================
// Hub
// ============================================================================

// Hub owns the set of connected clients and fans out serialized frames.
type Hub struct {
	logger *slog.Logger

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size (default 32).
	SendBuf int
	// BroadcastBuf is the hub inbound queue size (default 128).
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	if cfg.SendBuf <= 0 {
		cfg.SendBuf = 32
	}
	if cfg.BroadcastBuf <= 0 {
		cfg.BroadcastBuf = 128
	}
	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, cfg.BroadcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    cfg.SendBuf,
	}
}

// Run processes hub events until ctx is canceled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Debug("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("ws hub stopping (context canceled)")
			h.mu.Lock()
			clients := h.clients
			h.clients = make(map[*Client]struct{})
			h.mu.Unlock()
			for c := range clients {
				c.close()
			}
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			for _, c := range h.deliver(msg) {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// deliver queues msg on every client and returns the ones whose queue was full.
func (h *Hub) deliver(msg []byte) []*Client {
	var slow []*Client
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.enqueue(msg) {
			slow = append(slow, c)
		}
	}
	return slow
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	c.close()
	h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// BroadcastBytes enqueues a serialized frame for every client. It never blocks;
// if the hub queue is full the message is dropped.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	events chan<- Event // nil: inbound commands are rejected

	sendMu    sync.Mutex
	send      chan []byte
	closed    bool
	closeOnce sync.Once

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send queue.
func NewClient(hub *Hub, conn *websocket.Conn, events chan<- Event, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		events:     events,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

// enqueue queues msg without blocking. It reports false when the queue is full.
// Sending to a closed client is a silent no-op.
func (c *Client) enqueue(msg []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// close shuts the connection and the send queue; the write pump exits after
// sending a close frame.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.sendMu.Lock()
		c.closed = true
		close(c.send)
		c.sendMu.Unlock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second

	// maxCommandBytes bounds one inbound command (IPC line, WS frame, HTTP body).
	maxCommandBytes = 4 << 20
)

// frameCoalesceWindow is the minimum spacing of "frame" messages. Frames are
// produced at the tick rate; observers only need the latest.
const frameCoalesceWindow = 50 * time.Millisecond

// closeStatus extracts the websocket close code and text when present.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Debug("ws "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Debug("ws "+pump+" exiting", "remote_addr", c.remoteAddr, "error", err)
}

// writePump writes queued messages and keepalive pings. It exits on write
// error or when the send queue is closed.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", err)
				return
			}
		}
	}
}

// readPump handles control frames and inbound commands until the connection
// fails, then unregisters the client.
func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxCommandBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			c.logExit("readPump", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if typ != websocket.TextMessage {
			continue
		}
		c.handleCommand(ctx, data)
	}
}

func (c *Client) handleCommand(ctx context.Context, data []byte) {
	resp := IPCResponse{Status: "error", Error: "commands are disabled on this connection"}
	if c.events != nil {
		resp = dispatchCommand(ctx, data, c.events)
	}
	msg, err := marshalEnvelope("command_result", time.Time{}, resp)
	if err != nil {
		return
	}
	if !c.enqueue(msg) && c.hub != nil {
		c.hub.unregister <- c
	}
}

// ============================================================================
// HTTP handler
// ============================================================================

// Server wires the WS endpoint to the hub and the daemon loop.
type Server struct {
	logger *slog.Logger
	hub    *Hub

	// Snapshot requests and inbound commands go through the daemon loop.
	events         chan<- Event
	acceptCommands bool

	// ctx bounds client lifetimes; it outlives individual HTTP requests.
	ctx context.Context
}

type ServerConfig struct {
	Hub HubConfig
	// AcceptCommands lets WS clients send command envelopes.
	AcceptCommands bool
}

// NewServer constructs the WS state server. Register it on a mux, then start
// hub.Run(ctx) and RunBroadcaster.
func NewServer(ctx context.Context, logger *slog.Logger, events chan<- Event, cfg ServerConfig) *Server {
	return &Server{
		logger:         logger,
		hub:            NewHub(logger, cfg.Hub),
		events:         events,
		acceptCommands: cfg.AcceptCommands,
		ctx:            ctx,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

var upgrader = websocket.Upgrader{
	// Overlay pages are served from file:// or other local origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStateWS upgrades the request, registers the client and sends state_init.
func (s *Server) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	var commands chan<- Event
	if s.acceptCommands {
		commands = s.events
	}
	client := NewClient(s.hub, conn, commands, r.RemoteAddr, s.logger)
	s.hub.register <- client

	// The pumps outlive the handler: net/http cancels r.Context() on return.
	go client.writePump()
	go client.readPump(s.ctx)

	if s.events == nil {
		return
	}

	// state_init goes through the daemon loop. Any frame broadcast before it
	// arrives is superseded by the snapshot.
	ctx, cancel := context.WithTimeout(r.Context(), snapshotTimeout)
	defer cancel()
	snap, err := requestSnapshot(ctx, s.events)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("ws snapshot request failed", "error", err)
		}
		return
	}

	msg, err := marshalEnvelope("state_init", time.Time{}, snap)
	if err != nil {
		s.logger.Warn("ws state_init marshal failed", "error", err)
		return
	}
	if !client.enqueue(msg) {
		s.hub.unregister <- client
	}
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster marshals reducer broadcasts and fans them out to the hub.
// "frame" messages are rate-limited to one per frameCoalesceWindow (latest
// wins, no debounce-on-silence); any other message flushes a pending frame
// first so ordering is preserved.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan StateBroadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	var pendingFrame *wsOutboundEvent
	var frameTimer *time.Timer
	var frameTimerC <-chan time.Time

	emit := func(ev wsOutboundEvent) {
		msg, err := marshalEnvelope(ev.Type, ev.At, ev.Data)
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err, "type", ev.Type)
			return
		}
		hub.BroadcastBytes(msg)
	}

	flushFrame := func() {
		if pendingFrame == nil {
			return
		}
		emit(*pendingFrame)
		pendingFrame = nil
	}

	stopTimer := func() {
		if frameTimer != nil {
			frameTimer.Stop()
		}
		frameTimer = nil
		frameTimerC = nil
	}

	for {
		select {
		case <-ctx.Done():
			flushFrame()
			stopTimer()
			return

		case <-frameTimerC:
			frameTimer = nil
			frameTimerC = nil
			if pendingFrame != nil {
				flushFrame()
				frameTimer = time.NewTimer(frameCoalesceWindow)
				frameTimerC = frameTimer.C
			}

		case b, ok := <-src:
			if !ok {
				flushFrame()
				stopTimer()
				logger.Debug("ws broadcaster stopping (source ended)")
				return
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				continue
			}

			if ev.Type == "frame" {
				pendingFrame = &ev
				if frameTimer == nil {
					// First frame after a quiet period goes out immediately.
					flushFrame()
					frameTimer = time.NewTimer(frameCoalesceWindow)
					frameTimerC = frameTimer.C
				}
				continue
			}

			flushFrame()
			emit(ev)
		}
	}
}

func convertBroadcast(b StateBroadcast) (wsOutboundEvent, bool) {
	switch ev := b.(type) {
	case BroadcastFrame:
		return wsOutboundEvent{
			Type: "frame",
			Data: wsFrameData{
				CopyCount:     ev.Frame.CopyCount,
				StackOffset:   ev.Frame.StackOffset,
				Phase:         ev.Phase,
				VisibleOffset: ev.VisibleOffset,
				VisibleCopies: ev.Frame.VisibleCopies,
			},
			At: ev.At,
		}, true

	case BroadcastPlaybackChanged:
		return wsOutboundEvent{
			Type: "playback_changed",
			Data: wsPlaybackData{
				Status:             ev.Status,
				CountdownRemaining: ev.CountdownRemaining,
				ReachedEnd:         ev.ReachedEnd,
				Suspended:          ev.Suspended,
			},
			At: ev.At,
		}, true

	case BroadcastReachedEnd:
		return wsOutboundEvent{Type: "reached_end", Data: wsReachedEndData{Phase: ev.Phase}, At: ev.At}, true

	case BroadcastContentChanged:
		return wsOutboundEvent{
			Type: "content_changed",
			Data: wsContentData{
				Text:          ev.Text,
				Path:          ev.Path,
				LineHeight:    ev.LineHeight,
				ContentHeight: ev.ContentHeight,
			},
			At: ev.At,
		}, true

	case BroadcastSettingsChanged:
		return wsOutboundEvent{
			Type: "settings_changed",
			Data: wsSettingsData{
				SpeedPointsPerSec: ev.SpeedPointsPerSec,
				FontSize:          ev.FontSize,
				ScrollMode:        ev.ScrollMode,
				LoopGap:           ev.LoopGap,
				CountdownSeconds:  ev.CountdownSeconds,
				CountdownPolicy:   ev.CountdownPolicy,
			},
			At: ev.At,
		}, true

	case BroadcastError:
		return wsOutboundEvent{Type: "error", Data: wsErrorData{Message: ev.Message}, At: ev.At}, true

	default:
		return wsOutboundEvent{}, false
	}
}
