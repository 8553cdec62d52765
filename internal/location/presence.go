package location

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/fieldserve/internal/dispatch/domain"
)

// WorkerPresence is the last known position of one worker.
type WorkerPresence struct {
	WorkerID uuid.UUID       `json:"worker_id"`
	Point    domain.GeoPoint `json:"point"`
	LastSeen time.Time       `json:"last_seen"`
}

// Presence keeps the latest report per worker. It backs the fleet overview
// endpoint and answers "when did we last hear from this worker" questions
// without touching the tracking sessions.
type Presence struct {
	mu      sync.RWMutex
	workers map[uuid.UUID]WorkerPresence
}

// NewPresence constructs an empty presence cache.
func NewPresence() *Presence {
	return &Presence{workers: make(map[uuid.UUID]WorkerPresence)}
}

// UpdatePosition records the latest position for the worker.
func (p *Presence) UpdatePosition(id uuid.UUID, point domain.GeoPoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.workers[id] = WorkerPresence{WorkerID: id, Point: point, LastSeen: time.Now().UTC()}
}

// Get returns the last known presence for a worker.
func (p *Presence) Get(id uuid.UUID) (WorkerPresence, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pr, ok := p.workers[id]
	return pr, ok
}

// All returns every known worker presence.
func (p *Presence) All() []WorkerPresence {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]WorkerPresence, 0, len(p.workers))
	for _, pr := range p.workers {
		out = append(out, pr)
	}
	return out
}
