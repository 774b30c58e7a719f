package realtime

import (
	"context"
	"log/slog"
	"sync"
)

// Hub fans payloads out to connected websocket clients. A client whose
// buffer is full is dropped rather than slowing everyone else down.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves registrations and broadcasts until ctx is cancelled, then
// closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("live feed hub stopped")
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug("live feed client connected", "clients", h.ClientCount())
		case client := <-h.unregister:
			h.remove(client)
			h.logger.Debug("live feed client disconnected", "clients", h.ClientCount())
		case payload := <-h.broadcast:
			h.fanOut(payload)
		}
	}
}

// Broadcast queues payload for every client. It returns false when the hub
// is backed up or already stopped.
func (h *Hub) Broadcast(payload []byte) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.broadcast <- payload:
		return true
	default:
		return false
	}
}

func (h *Hub) Register(client *Client) bool {
	select {
	case <-h.done:
		return false
	case h.register <- client:
		return true
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case <-h.done:
	case h.unregister <- client:
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) fanOut(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			delete(h.clients, client)
			close(client.send)
			h.logger.Warn("dropping slow live feed client", "client_id", client.id)
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}
