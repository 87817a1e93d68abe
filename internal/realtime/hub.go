// Package realtime relays location pings and ephemeral chat between the two
// parties of an active job over one broadcast group per job.
package realtime

import (
	"log"
	"sync"
)

// Hub maintains the per-job broadcast groups. A group exists only while at
// least one connection is joined; nothing here is persisted.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Client]bool)}
}

// Join registers the connection in its job's broadcast group.
func (h *Hub) Join(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[c.jobID] == nil {
		h.rooms[c.jobID] = make(map[*Client]bool)
	}
	h.rooms[c.jobID][c] = true
}

// Leave removes the connection from its group. Has no effect on the job or
// on the other participants' connections.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.rooms[c.jobID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.rooms, c.jobID)
		}
	}
}

// Broadcast fans a frame out to every connection joined to the job's group,
// including the sender's own connection.
func (h *Hub) Broadcast(jobID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[jobID] {
		select {
		case client.send <- payload:
		default:
			// client buffer full, skip
			log.Printf("ws send buffer full client=%s job=%s", client.id, jobID)
		}
	}
}

// GroupSize returns the number of connections joined to a job's group.
func (h *Hub) GroupSize(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[jobID])
}
