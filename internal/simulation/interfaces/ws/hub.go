package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	simulation "solarflow-cloud/internal/simulation/domain"
)

// TypeReading is the envelope type of a live reading.
const TypeReading = "reading"

// Envelope is the wire message sent to clients.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an envelope.
func NewEnvelope(msgType string, payload any) ([]byte, error) {
	env := Envelope{Type: msgType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = data
	}
	return json.Marshal(env)
}

// Client represents a connected WebSocket client.
type Client struct {
	hub          *Hub
	conn         *websocket.Conn
	send         chan []byte
	subscriberID string
}

// Hub manages WebSocket clients and broadcasts readings.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	logger  *log.Logger
}

// NewHub constructs a hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		clients: make(map[*Client]bool),
		logger:  logger,
	}
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

// Unregister removes a client and closes its send queue.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Publish implements simulation.Broadcaster.
func (h *Hub) Publish(_ context.Context, reading simulation.EnergyReading) error {
	msg, err := NewEnvelope(TypeReading, reading)
	if err != nil {
		return err
	}
	h.broadcast(reading.SubscriberID, msg)
	return nil
}

func (h *Hub) broadcast(subscriberID string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.subscriberID != "" && c.subscriberID != subscriberID {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.logger.Printf("ws client buffer full: subscriber=%s", subscriberID)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
