package tracking

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/fieldserve/internal/dispatch/domain"
)

// Registry is a concurrency-safe store of active sessions keyed by request
// id. Unrelated sessions never contend on anything but the map itself; each
// session carries its own lock for transitions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uuid.UUID]*Session)}
}

// Create registers the session, enforcing at most one active session per id.
func (r *Registry) Create(session *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[session.ID()]; exists {
		return domain.ErrSessionExists
	}
	r.sessions[session.ID()] = session
	activeSessions.Set(float64(len(r.sessions)))
	return nil
}

// Get returns the session for id.
func (r *Registry) Get(id uuid.UUID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Apply runs fn against the session for id. The session's own lock makes the
// transition atomic with respect to other updates on the same session.
func (r *Registry) Apply(id uuid.UUID, fn func(*Session) error) error {
	session, err := r.Get(id)
	if err != nil {
		return err
	}
	return fn(session)
}

// Remove drops the session immediately.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	activeSessions.Set(float64(len(r.sessions)))
}

// RemoveAfter drops the session once the grace period elapses, keeping the
// final snapshot retrievable in the meantime.
func (r *Registry) RemoveAfter(id uuid.UUID, grace time.Duration) {
	if grace <= 0 {
		r.Remove(id)
		return
	}
	time.AfterFunc(grace, func() { r.Remove(id) })
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
