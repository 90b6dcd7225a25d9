package services

import (
	"encoding/json"
	"sync"
)

const (
	EventGenerateProgress  = "generate.progress"
	EventGenerateCompleted = "generate.completed"
	EventGenerateFailed    = "generate.failed"
)

type WSEvent struct {
	Type      string   `json:"type"`
	JobID     string   `json:"jobId"`
	Line      string   `json:"line,omitempty"`
	ImageUrls []string `json:"imageUrls,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// Hub maps browser client ids to their websocket connection. One connection
// per id; a reconnect replaces the old one.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*WSClient
}

func safeCloseBytes(ch chan []byte) {
	defer func() {
		_ = recover()
	}()
	close(ch)
}

func NewHub() *Hub {
	return &Hub{
		clients: map[string]*WSClient{},
	}
}

func (h *Hub) Add(c *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.clients[c.id]; ok && old != c {
		old.close()
	}

	h.clients[c.id] = c
}

// Remove drops c only if it is still the registered connection for its id.
func (h *Hub) Remove(c *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur, ok := h.clients[c.id]; ok && cur == c {
		delete(h.clients, c.id)
	}
	c.close()
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := h.clients
	h.clients = map[string]*WSClient{}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) SendTo(clientId string, event WSEvent) {
	h.mu.RLock()
	c := h.clients[clientId]
	h.mu.RUnlock()

	if c == nil {
		return
	}

	b, _ := json.Marshal(event)
	if !c.enqueue(b) {
		// slow consumer
		h.Remove(c)
	}
}
