package wsevents

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades inbound HTTP requests to WebSocket connections and
// registers them with a Hub.
type Handler struct {
	hub *Hub
	log *logger.Logger
}

// NewHandler returns a Handler serving hub's event stream.
func NewHandler(hub *Hub, log *logger.Logger) *Handler {
	return &Handler{hub: hub, log: log}
}

// ServeHTTP upgrades the connection and starts the client's read/write
// pumps. It never returns while the connection is open.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.log != nil {
			h.log.Error("failed to upgrade websocket connection", "error", err)
		}
		return
	}

	client := newClient(uuid.New().String(), conn, h.hub)
	h.hub.register <- client

	go client.writePump()
	client.readPump()
}
