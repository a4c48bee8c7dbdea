package tftp

import (
	"sync"

	"github.com/google/uuid"
)

// Session is what the Registry needs to know about a running transfer.
type Session interface {
	ID() uuid.UUID
	State() State
	Done() <-chan struct{}
}

// Registry keeps track of active sessions. It is safe for concurrent use.
type Registry struct {
	sessions map[uuid.UUID]Session
	mx       sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uuid.UUID]Session)}
}

// Add registers a session.
func (r *Registry) Add(s Session) {
	r.mx.Lock()
	r.sessions[s.ID()] = s
	r.mx.Unlock()
}

// Get returns the session with the given id.
func (r *Registry) Get(id uuid.UUID) (Session, bool) {
	r.mx.RLock()
	s, ok := r.sessions[id]
	r.mx.RUnlock()
	return s, ok
}

// Remove unregisters a session.
func (r *Registry) Remove(id uuid.UUID) {
	r.mx.Lock()
	delete(r.sessions, id)
	r.mx.Unlock()
}

// Prune removes every finished session and returns how many were removed.
func (r *Registry) Prune() int {
	r.mx.Lock()
	defer r.mx.Unlock()

	n := 0
	for id, s := range r.sessions {
		select {
		case <-s.Done():
			delete(r.sessions, id)
			n++
		default:
		}
	}
	return n
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return len(r.sessions)
}

// IDs returns the ids of registered sessions.
func (r *Registry) IDs() []uuid.UUID {
	r.mx.RLock()
	defer r.mx.RUnlock()

	ids := make([]uuid.UUID, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
