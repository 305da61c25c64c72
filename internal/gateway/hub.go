// Package gateway fans trigger and hotlist frames out to websocket
// clients. Frames arrive over Redis pub/sub so every scanserver replica
// delivers to its own connections; a small replay ring catches clients
// up on recent triggers when they connect.
package gateway

import (
	"log"
	"sync"
	"time"
)

const defaultReplayCap = 64

// Hub tracks connected clients grouped by user and owns the replay ring.
type Hub struct {
	sendBuf int

	mu    sync.RWMutex
	users map[int64]map[*Client]bool

	ring *ReplayRing
}

// NewHub creates a hub. sendBuf is the per-client outbound queue size.
func NewHub(sendBuf int) *Hub {
	if sendBuf <= 0 {
		sendBuf = 256
	}
	return &Hub{
		sendBuf: sendBuf,
		users:   make(map[int64]map[*Client]bool),
		ring:    NewReplayRing(defaultReplayCap),
	}
}

// register adds a client to its user's group.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	set := h.users[c.userID]
	if set == nil {
		set = make(map[*Client]bool)
		h.users[c.userID] = set
	}
	set[c] = true
	total := h.clientCount()
	h.mu.Unlock()

	log.Printf("[scanserver] ws client connected user=%d (%d total)", c.userID, total)
}

// RemoveClient removes a client and closes its send channel. Safe to
// call more than once for the same client.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	set, ok := h.users[c.userID]
	if ok && set[c] {
		delete(set, c)
		if len(set) == 0 {
			delete(h.users, c.userID)
		}
		close(c.send)
		total := h.clientCount()
		h.mu.Unlock()
		log.Printf("[scanserver] ws client disconnected user=%d (%d total)", c.userID, total)
		return
	}
	h.mu.Unlock()
}

// SendToUsers queues a frame to every connection of the given users.
// Slow clients are skipped rather than blocking the caller. Returns the
// number of connections the frame was queued to.
func (h *Hub) SendToUsers(userIDs []int64, frame []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for _, uid := range userIDs {
		for c := range h.users[uid] {
			select {
			case c.send <- frame:
				sent++
			default:
				log.Printf("[scanserver] ws send buffer full, dropping frame for user=%d", uid)
			}
		}
	}
	return sent
}

// RecordTrigger retains a trigger frame for replay to future connections.
func (h *Hub) RecordTrigger(at time.Time, frame []byte) {
	h.ring.Push(at, frame)
}

// ReplayEntries returns retained trigger frames oldest-first.
func (h *Hub) ReplayEntries() []replayEntry {
	return h.ring.Entries()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clientCount()
}

// UserCount returns the number of distinct users with a connection.
func (h *Hub) UserCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users)
}

func (h *Hub) clientCount() int {
	n := 0
	for _, set := range h.users {
		n += len(set)
	}
	return n
}
