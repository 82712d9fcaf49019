package sse

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/turnhub/turnhub/internal/domain/realtime"
)

// Hub manages SSE clients and fans broadcast frames out to channel
// subscribers. Sends are non-blocking; a slow client drops frames and
// re-syncs from the event log.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*realtime.Client
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*realtime.Client),
	}
}

func (h *Hub) Register(client *realtime.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ClientID] = client
}

func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		c.Close()
		delete(h.clients, clientID)
	}
}

func (h *Hub) GetClient(clientID string) *realtime.Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[clientID]
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish implements realtime.Broadcaster.
func (h *Hub) Publish(channel, event string, payload json.RawMessage) error {
	msg := realtime.NewMessage(channel, event, payload)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.Subscribed(channel) {
			trySend(c, msg)
		}
	}
	return nil
}

func (h *Hub) SendToClient(clientID string, msg *realtime.Message) error {
	h.mu.RLock()
	c := h.clients[clientID]
	h.mu.RUnlock()
	if c == nil {
		return realtime.ErrClientNotFound
	}
	if !trySend(c, msg) {
		return realtime.ErrChannelFull
	}
	return nil
}

func (h *Hub) Start(ctx context.Context) {
	_ = ctx
}

func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.Close()
		delete(h.clients, id)
	}
}

func trySend(c *realtime.Client, msg *realtime.Message) bool {
	select {
	case c.MessageChan <- msg:
		return true
	default:
		return false
	}
}
