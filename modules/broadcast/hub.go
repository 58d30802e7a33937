package broadcast

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
)

// Envelope is the frame written to clients.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// FrameWriter is the part of a WebSocket connection the hub writes to.
// *websocket.Conn satisfies it.
type FrameWriter interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one connection's outbound queue. Frames are written by
// WritePump so a slow socket never blocks emitters.
type Client struct {
	ID   string
	conn FrameWriter
	send chan []byte
	done chan struct{}

	closeOnce sync.Once
}

// NewClient creates a client with a send queue of the given size.
func NewClient(id string, conn FrameWriter, buffer int) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		ID:   id,
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// WritePump writes queued frames until the queue is closed or a write fails.
func (c *Client) WritePump(logger types.Logger) {
	defer close(c.done)
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logger.Debug("Write to client failed", "clientID", c.ID, "error", err)
			// Closing the socket fails the reader, which unregisters the
			// client and closes the queue.
			_ = c.conn.Close()
			for range c.send {
			}
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
}

// Done is closed when WritePump returns.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) closeQueue() {
	c.closeOnce.Do(func() { close(c.send) })
}

// Hub tracks live connections and their room subscriptions, and fans
// outbound events out to them.
type Hub struct {
	clients   map[string]*Client         // clientID -> Client
	rooms     map[string]map[string]bool // roomID -> set of clientIDs
	evictions chan *Client
	done      chan struct{}
	mu        sync.RWMutex
	logger    types.Logger
}

// NewHub creates a new Hub.
func NewHub(logger types.Logger) *Hub {
	return &Hub{
		clients:   make(map[string]*Client),
		rooms:     make(map[string]map[string]bool),
		evictions: make(chan *Client, 64),
		done:      make(chan struct{}),
		logger:    logger,
	}
}

// Run evicts slow consumers until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Hub shutting down")
			h.closeAllClients()
			close(h.done)
			return
		case client := <-h.evictions:
			if h.remove(client) {
				h.logger.Warn("Evicted slow client", "clientID", client.ID)
				if client.conn != nil {
					_ = client.conn.Close()
				}
			}
		}
	}
}

// Wait blocks until the hub has stopped.
func (h *Hub) Wait() {
	<-h.done
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		client.closeQueue()
		if client.conn != nil {
			_ = client.conn.Close()
		}
	}
	h.clients = make(map[string]*Client)
	h.rooms = make(map[string]map[string]bool)
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.logger.Debug("Client registered", "clientID", client.ID)
}

// Unregister removes a client and all its subscriptions, and closes its
// queue. It is safe to call more than once.
func (h *Hub) Unregister(client *Client) {
	if h.remove(client) {
		h.logger.Debug("Client unregistered", "clientID", client.ID)
	}
}

func (h *Hub) remove(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	current, ok := h.clients[client.ID]
	if !ok || current != client {
		return false
	}
	delete(h.clients, client.ID)
	for roomID, members := range h.rooms {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	client.closeQueue()
	return true
}

// Subscribe adds a client to rooms. Unknown clients are ignored.
func (h *Hub) Subscribe(clientID string, roomIDs ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[clientID]; !ok {
		return
	}
	for _, roomID := range roomIDs {
		if h.rooms[roomID] == nil {
			h.rooms[roomID] = make(map[string]bool)
		}
		h.rooms[roomID][clientID] = true
	}
}

// Unsubscribe removes a client from a room.
func (h *Hub) Unsubscribe(clientID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[roomID]; ok {
		delete(members, clientID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// Subscribed reports whether a client receives a room's events.
func (h *Hub) Subscribed(clientID, roomID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[roomID][clientID]
}

// Emit sends an event to one client.
func (h *Hub) Emit(clientID, event string, payload any) {
	data, ok := h.encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if client, ok := h.clients[clientID]; ok {
		h.enqueue(client, data)
	}
}

// EmitToRoom sends an event to every subscriber of a room except one.
func (h *Hub) EmitToRoom(roomID, event string, payload any, exceptClientID string) {
	data, ok := h.encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for clientID := range h.rooms[roomID] {
		if clientID == exceptClientID {
			continue
		}
		if client, ok := h.clients[clientID]; ok {
			h.enqueue(client, data)
		}
	}
}

// EmitToAll sends an event to every client except one.
func (h *Hub) EmitToAll(event string, payload any, exceptClientID string) {
	data, ok := h.encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for clientID, client := range h.clients {
		if clientID != exceptClientID {
			h.enqueue(client, data)
		}
	}
}

func (h *Hub) encode(event string, payload any) ([]byte, bool) {
	data, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		h.logger.Error("Failed to marshal event", "event", event, "error", err)
		return nil, false
	}
	return data, true
}

// enqueue never blocks. A full queue marks the client for eviction.
// Callers hold at least the read lock, so the queue is still open.
func (h *Hub) enqueue(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		select {
		case h.evictions <- client:
		default:
		}
	}
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomClientCount returns the number of clients subscribed to a room.
func (h *Hub) RoomClientCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
