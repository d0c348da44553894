package ws

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades connections and attaches them to the hub.
// The optional subscriber_id query parameter filters the stream.
type Handler struct {
	hub *Hub
}

// NewHandler constructs a handler.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// ServeHTTP handles GET /ws.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.logger.Printf("ws upgrade error: %v", err)
		return
	}

	client := &Client{
		hub:          h.hub,
		conn:         conn,
		send:         make(chan []byte, 256),
		subscriberID: r.URL.Query().Get("subscriber_id"),
	}
	h.hub.Register(client)
	go client.writePump()

	h.readPump(client)
}

// readPump drains client frames until the connection closes.
func (h *Handler) readPump(c *Client) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.hub.logger.Printf("ws read error: %v", err)
			}
			return
		}
	}
}
