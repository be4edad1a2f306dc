// Package registry maps authenticated users to their single live
// socket session. Delivery targeting always goes through the registry,
// never through room membership.
package registry

import "sync"

// Session is a live transport connection owned by one user. UserID
// returns zero when identity decode failed at handshake time; such
// sessions are never registered and stay invisible to routing.
type Session interface {
	UserID() int
	DisplayName() string
	Send(event string, data any) error
}

// Registry holds the user -> session mapping. One session per user:
// registering a second session for the same user displaces the first.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int]Session
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{sessions: make(map[int]Session)}
}

// Register binds the session to the user, replacing any prior session.
// Last registered wins.
func (r *Registry) Register(userID int, s Session) {
	if userID == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[userID] = s
}

// Unregister removes the mapping for the session. When the session's
// user is known the removal is keyed, and a displaced stale session
// never removes its successor's mapping. When identity was never
// determined the lookup falls back to a linear scan by handle.
func (r *Registry) Unregister(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id := s.UserID(); id != 0 {
		if current, ok := r.sessions[id]; ok && current == s {
			delete(r.sessions, id)
		}
		return
	}

	for id, current := range r.sessions {
		if current == s {
			delete(r.sessions, id)
			return
		}
	}
}

// Lookup returns the live session for the user, if any.
func (r *Registry) Lookup(userID int) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// Count reports the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
