package ws

import (
	"context"
	"sync"

	"cio-chat/backend/pkg/logger"
)

// Hub tracks connected clients so they can be closed together on shutdown
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.Mutex
	log        *logger.Logger
	done       chan struct{}
}

// NewHub creates a hub; call Run to start it
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log.WithComponent("ws.hub"),
		done:       make(chan struct{}),
	}
}

// Run processes registrations until ctx ends, then closes every client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("Client registered", "client_id", client.ID, "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closeSend()
			}
			h.mu.Unlock()
			h.log.Debug("Client unregistered", "client_id", client.ID)

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.closeSend()
				_ = client.Conn.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.log.Info("Hub stopped")
			return
		}
	}
}

// ClientCount returns the number of registered clients
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
