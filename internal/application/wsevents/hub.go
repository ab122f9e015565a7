// Package wsevents exposes an Instance's EventsFromRuntime stream to
// WebSocket subscribers, adapted from the teacher's
// internal/application/observer WebSocketObserver/WebSocketHub pair.
package wsevents

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/smilemakc/mbflow/internal/application/orchestrator"
	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
)

// Hub fans RuntimeEvent values out to every connected WebSocket client.
// One Hub serves one Instance.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	log        *logger.Logger
	mu         sync.RWMutex
}

// NewHub starts a Hub's broadcast loop in the background.
func NewHub(log *logger.Logger) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
	}
	go h.run()
	return h
}

// Watch subscribes to inst's RuntimeEvent stream and broadcasts every
// event to connected clients as JSON until the channel closes.
func (h *Hub) Watch(inst *orchestrator.Instance) {
	for evt := range inst.Subscribe() {
		data, err := json.Marshal(wireEvent{
			Type:      string(evt.Type),
			NodeID:    evt.NodeID.String(),
			Steps:     len(evt.History),
			Mode:      string(evt.PlaybackMode),
			Timestamp: time.Now(),
		})
		if err != nil {
			if h.log != nil {
				h.log.Error("failed to marshal runtime event", "error", err)
			}
			continue
		}
		h.broadcast <- data
	}
}

// wireEvent is the JSON shape delivered to WebSocket subscribers: a
// flattened projection of orchestrator.RuntimeEvent, since not every
// field applies to every event Type.
type wireEvent struct {
	Type      string    `json:"type"`
	NodeID    string    `json:"node_id,omitempty"`
	Steps     int       `json:"steps_applied,omitempty"`
	Mode      string    `json:"playback_mode,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			if h.log != nil {
				h.log.Info("websocket client connected", "client_id", client.id)
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			if h.log != nil {
				h.log.Info("websocket client disconnected", "client_id", client.id)
			}

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// ClientCount returns the number of connected WebSocket clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client is one connected WebSocket subscriber.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

func newClient(id string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{id: id, conn: conn, send: make(chan []byte, 256), hub: hub}
}

// readPump drains and discards client frames (this stream is
// publish-only), closing the connection on any read error.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump delivers broadcast events to the client and pings it to
// keep the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
