package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ahkjxy/family-points-bank-sub000/internal/feed"
)

// Hub tracks connected clients per family and fans feed events out to the
// clients of the event's family.
type Hub struct {
	mu       sync.RWMutex
	families map[string]map[*Client]struct{}
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		families: make(map[string]map[*Client]struct{}),
		logger:   logger.With("component", "websocket"),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.families[c.familyID]
	if !ok {
		set = make(map[*Client]struct{})
		h.families[c.familyID] = set
	}
	set[c] = struct{}{}
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.families[c.familyID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.families, c.familyID)
	}
}

// Broadcast sends data to every client of the family. Clients whose buffer
// is full miss the message.
func (h *Hub) Broadcast(familyID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.families[familyID] {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("client buffer full, dropping message", "family_id", familyID)
		}
	}
}

// Publish implements feed.Publisher.
func (h *Hub) Publish(_ context.Context, e feed.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	h.Broadcast(e.FamilyID, data)
	return nil
}

// ClientCount returns the number of clients connected for familyID, or for
// all families when familyID is empty.
func (h *Hub) ClientCount(familyID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if familyID != "" {
		return len(h.families[familyID])
	}
	n := 0
	for _, set := range h.families {
		n += len(set)
	}
	return n
}
