package ws

import (
	"sync"

	"go.uber.org/zap"

	"github.com/teemates/realtime/logger"
	"github.com/teemates/realtime/metrics"
)

// Hub tracks connected clients and their room memberships and fans
// frames out to them. All state is guarded by a single mutex; frame
// delivery itself never blocks the hub.
type Hub struct {
	log *zap.SugaredLogger

	mu      sync.RWMutex
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		log:     logger.Logger.Named("ws"),
		clients: make(map[*Client]bool),
		rooms:   make(map[string]map[*Client]bool),
	}
}

// register adds a connected client. Every client starts in its own
// user room so private pushes reach it without an explicit subscribe.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.joinLocked(c, UserRoom(c.userID))
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(total))
	h.log.Infow("client connected", "user_id", c.userID, "clients", total)
}

// unregister tears a client down. Memberships go first so no broadcast
// can route to the client after this returns, then the send channel is
// closed to stop the write pump.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	delete(h.clients, c)
	total := len(h.clients)
	h.mu.Unlock()

	c.closeSend()
	metrics.WSConnections.Set(float64(total))
	h.log.Infow("client disconnected", "user_id", c.userID, "clients", total)
}

// join subscribes a client to a room. Authorization happens in the
// client's frame router before this is called.
func (h *Hub) join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinLocked(c, room)
}

func (h *Hub) joinLocked(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[room] = members
	}
	members[c] = true
	c.rooms[room] = true
}

// leave unsubscribes a client from a room
func (h *Hub) leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

// BroadcastToRoom pushes a frame to every member of a room. Clients
// whose send buffer is full miss the frame rather than stall the hub.
// The send loop runs under the read lock: trySend never blocks, and
// holding the lock means unregister cannot close a member's send
// channel mid-fanout.
func (h *Hub) BroadcastToRoom(room string, frame ServerFrame) {
	metrics.WSBroadcasts.WithLabelValues(frame.Type).Inc()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		if !c.trySend(frame) {
			h.log.Warnw("dropped frame for slow client",
				"user_id", c.userID, "room", room, "type", frame.Type)
		}
	}
}

// BroadcastToUser pushes a frame to every connection the user holds
func (h *Hub) BroadcastToUser(userID string, frame ServerFrame) {
	h.BroadcastToRoom(UserRoom(userID), frame)
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of members in a room
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// membershipCount returns the total memberships across all rooms
func (h *Hub) membershipCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, members := range h.rooms {
		n += len(members)
	}
	return n
}
