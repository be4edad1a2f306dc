package ws

import (
	"log"
	"sync"

	"messaging-service/internal/registry"
)

// Hub tracks broadcast-room membership. Rooms share only the transport
// with the private-message path; nothing here touches persistence.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[registry.Session]bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[registry.Session]bool)}
}

// Join adds the session to a room. Joining twice is a no-op.
func (h *Hub) Join(roomID string, s registry.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[registry.Session]bool)
	}
	h.rooms[roomID][s] = true
}

// Leave removes the session from a room. Leaving a room the session
// never joined is a no-op.
func (h *Hub) Leave(roomID string, s registry.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[roomID]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// LeaveAll drops the session from every room it joined.
func (h *Hub) LeaveAll(s registry.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID, members := range h.rooms {
		delete(members, s)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// Members reports the number of sessions joined to a room.
func (h *Hub) Members(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Broadcast fans an event out to every room member except the sender.
func (h *Hub) Broadcast(roomID string, except registry.Session, event string, data any) {
	h.mu.RLock()
	members := make([]registry.Session, 0, len(h.rooms[roomID]))
	for s := range h.rooms[roomID] {
		if s != except {
			members = append(members, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range members {
		if err := s.Send(event, data); err != nil {
			log.Printf("room broadcast to user %d failed: %v", s.UserID(), err)
		}
	}
}
