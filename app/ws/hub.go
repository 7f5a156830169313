// Package ws fans pipeline progress events out to WebSocket observers.
// Delivery is best-effort: a slow or dead client is dropped, never waited on.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/taptao/FeedWise/app/processor"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	sendBufferSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API already gates access with its own auth middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected observers and broadcasts serialized events to all of
// them. It satisfies the engine's Broadcaster contract.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	statusFn func() any
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// SetStatusSource registers the provider of the current pipeline progress
// sent to every client on connect. Set once during wiring, before Serve
// handles connections.
func (h *Hub) SetStatusSource(fn func() any) {
	h.statusFn = fn
}

// Broadcast serializes the event once and queues it to every connected
// client. Clients whose send buffer is full are dropped.
func (h *Hub) Broadcast(event processor.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to serialize event", "type", event.Type, "error", err)
		return
	}

	h.mu.Lock()
	var dead []*client
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			dead = append(dead, c)
		}
	}
	for _, c := range dead {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	for _, c := range dead {
		slog.Debug("Dropped slow websocket client")
		c.conn.Close()
	}
}

// ClientCount returns the number of connected observers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// Serve upgrades the request and keeps the connection registered until it
// closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	slog.Debug("Websocket client connected", "remote", conn.RemoteAddr())

	var status any = struct{}{}
	if h.statusFn != nil {
		status = h.statusFn()
	}
	welcome, _ := json.Marshal(processor.Event{Type: "connected", Data: status})
	h.trySend(c, welcome)

	go h.writeLoop(c)
	h.readLoop(c)
}

// trySend queues data for a still-registered client, dropping it if the
// buffer is full. Sending through here avoids a send on a closed channel.
func (h *Hub) trySend(c *client, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}

	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	c.conn.Close()
}

// readLoop consumes client messages to keep the connection alive and
// answers application-level pings.
func (h *Hub) readLoop(c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		// Application-level heartbeat; the reply goes through the send
		// channel so the write loop stays the only writer.
		if string(message) == "ping" {
			h.trySend(c, []byte("pong"))
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
