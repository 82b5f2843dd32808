package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"nonogram/internal/repository"

	"github.com/gofiber/websocket/v2"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Clients refetch the catalog only when the version moves, at most once per heartbeat
	versionHeartbeatInterval = 2 * time.Second

	// MessageCatalogVersion is the type of every message the hub sends
	MessageCatalogVersion = "CATALOG_VERSION"
)

// ClientGauge receives the number of connected clients and the last broadcast version
type ClientGauge interface {
	WebsocketClients(n int)
	CatalogVersion(v int64)
}

// Client represents a WebSocket client connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains the set of active clients and broadcasts catalog version changes to them
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client

	versions repository.VersionCounter
	gauge    ClientGauge
	interval time.Duration

	mu sync.RWMutex

	// Closed once Run has returned
	done chan struct{}

	// Only touched by the Run goroutine
	lastVersion int64
}

// VersionUpdate represents the version heartbeat message
type VersionUpdate struct {
	Type    string `json:"type"`
	Version int64  `json:"version"`
}

// NewHub creates a new WebSocket hub. A nil gauge is allowed.
func NewHub(versions repository.VersionCounter, gauge ClientGauge) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		versions:   versions,
		gauge:      gauge,
		interval:   versionHeartbeatInterval,
		done:       make(chan struct{}),
	}
}

// Run starts the WebSocket hub
func (h *Hub) Run(ctx context.Context) {
	log.Println("WebSocket hub started")

	versionTicker := time.NewTicker(h.interval)
	defer versionTicker.Stop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.setClients(n)
			h.sendInitialVersion(ctx, client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.setClients(len(h.clients))
				close(client.send)
			}
			h.mu.Unlock()

		case <-versionTicker.C:
			h.checkAndBroadcastVersion(ctx)

		case <-ctx.Done():
			log.Println("WebSocket hub shutting down")
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.setClients(0)
			h.mu.Unlock()
			close(h.done)
			return
		}
	}
}

// checkAndBroadcastVersion broadcasts the catalog version when it moved since the last check
func (h *Hub) checkAndBroadcastVersion(ctx context.Context) {
	currentVersion, err := h.versions.GetCatalogVersion(ctx)
	if err != nil {
		log.Printf("Failed to get catalog version: %v", err)
		return
	}
	if currentVersion == h.lastVersion {
		return
	}
	h.lastVersion = currentVersion
	if h.gauge != nil {
		h.gauge.CatalogVersion(currentVersion)
	}

	message, err := versionMessage(currentVersion)
	if err != nil {
		log.Printf("Failed to marshal version update: %v", err)
		return
	}

	h.mu.RLock()
	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			// Slow client, it will catch up on the next change
		}
	}
	h.mu.RUnlock()
}

// sendInitialVersion sends the current version to a newly connected client
func (h *Hub) sendInitialVersion(ctx context.Context, client *Client) {
	currentVersion, err := h.versions.GetCatalogVersion(ctx)
	if err != nil {
		log.Printf("Failed to get initial version: %v", err)
		return
	}
	if h.lastVersion == 0 {
		h.lastVersion = currentVersion
	}

	message, err := versionMessage(currentVersion)
	if err != nil {
		return
	}

	h.mu.RLock()
	_, exists := h.clients[client]
	h.mu.RUnlock()
	if !exists {
		return
	}

	select {
	case client.send <- message:
	case <-time.After(2 * time.Second):
		log.Println("Timeout sending initial version, client may be slow")
	}
}

// join registers a client unless the hub has stopped
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// leave unregisters a client, returning at once when the hub has stopped
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// GetClientCount returns the current number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) setClients(n int) {
	if h.gauge != nil {
		h.gauge.WebsocketClients(n)
	}
}

func versionMessage(version int64) ([]byte, error) {
	return json.Marshal(VersionUpdate{Type: MessageCatalogVersion, Version: version})
}

// readPump drains the connection until the peer goes away. Clients are not expected to send anything.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket unexpected close: %v", err)
			}
			return
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))

		w, err := c.conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		w.Write(message)

		n := len(c.send)
		for i := 0; i < n; i++ {
			w.Write([]byte{'\n'})
			w.Write(<-c.send)
		}

		if err := w.Close(); err != nil {
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// ServeWS registers the connection with the hub and blocks until it closes
func ServeWS(hub *Hub, conn *websocket.Conn) {
	client := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	if !hub.join(client) {
		conn.Close()
		return
	}

	go client.writePump()
	client.readPump()
}
