package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/model"
)

// Control message types exchanged with the client itself (distinct from
// progress events, which only flow server → client).
const (
	controlTypePing = "ping"
	controlTypePong = "pong"
)

type controlMessage struct {
	Type string `json:"type"`
}

// Client represents one WebSocket subscriber of a session's progress.
type Client struct {
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte

	mu     sync.Mutex
	closed bool
}

// enqueue delivers data to the client's send buffer. It reports false
// when the buffer is full or the channel is already closed, so the hub
// loop and the connection's reader can both write without racing the
// close.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// close shuts the send channel exactly once.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// Hub fans progress events out to the connections watching each session.
// Delivery is fire-and-forget: a session with no subscribers, or a
// subscriber whose buffer is full, never slows the pipeline down.
type Hub struct {
	// Clients grouped by session ID
	clients map[string]map[*Client]bool

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	// Broadcast messages to session subscribers
	broadcast chan *BroadcastMessage

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	SessionID string
	Message   []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.SessionID] == nil {
				h.clients[client.SessionID] = make(map[*Client]bool)
			}
			h.clients[client.SessionID][client] = true
			h.mu.Unlock()
			log.Printf("Client registered for session %s", client.SessionID)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.SessionID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					client.close()
					if len(clients) == 0 {
						delete(h.clients, client.SessionID)
					}
				}
			}
			h.mu.Unlock()
			log.Printf("Client unregistered from session %s", client.SessionID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			if clients, ok := h.clients[msg.SessionID]; ok {
				for client := range clients {
					if !client.enqueue(msg.Message) {
						// slow or gone: drop the subscriber, never block
						client.close()
						delete(clients, client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Publish sends a progress event to all subscribers of a session.
// It never fails: marshalling problems are logged and the event dropped,
// and a closed or absent connection is simply not written to.
func (h *Hub) Publish(sessionID string, event model.ProgressEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to marshal progress event: %v", err)
		return
	}

	h.broadcast <- &BroadcastMessage{
		SessionID: sessionID,
		Message:   data,
	}
}

// HandleConnection handles a WebSocket connection
func (h *Hub) HandleConnection(c *websocket.Conn, sessionID string) {
	client := &Client{
		SessionID: sessionID,
		Conn:      c,
		Send:      make(chan []byte, 256),
	}

	h.Register(client)
	defer h.Unregister(client)

	// Start writer goroutine
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				// Send ping for keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		// Handle client messages (ping/pong)
		var msg controlMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == controlTypePing {
			pong := controlMessage{Type: controlTypePong}
			data, _ := json.Marshal(pong)
			client.enqueue(data)
		}
	}
}
