package directory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/example/fieldserve/internal/dispatch/domain"
)

// MemoryDirectory keeps worker snapshots in memory and doubles as the claim
// store: claiming a worker flips its availability flag under the directory
// lock, so only one concurrent claim for a worker can succeed. Suitable for
// tests and single-instance deployments.
type MemoryDirectory struct {
	mu      sync.Mutex
	workers map[uuid.UUID]domain.Worker
	claims  map[uuid.UUID]uuid.UUID
}

// NewMemoryDirectory constructs an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		workers: make(map[uuid.UUID]domain.Worker),
		claims:  make(map[uuid.UUID]uuid.UUID),
	}
}

// Upsert stores or replaces a worker snapshot.
func (m *MemoryDirectory) Upsert(w domain.Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers[w.ID] = w
}

// UpdatePosition moves a worker without touching its availability.
func (m *MemoryDirectory) UpdatePosition(id uuid.UUID, point domain.GeoPoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.workers[id]; ok {
		w.Location = point
		m.workers[id] = w
	}
}

// Get returns the current snapshot for a worker.
func (m *MemoryDirectory) Get(id uuid.UUID) (domain.Worker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[id]
	return w, ok
}

// ListAvailable returns snapshots of unclaimed, available workers in the
// category.
func (m *MemoryDirectory) ListAvailable(_ context.Context, category string) ([]domain.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Worker
	for _, w := range m.workers {
		if w.Category != category || !w.Available {
			continue
		}
		if _, claimed := m.claims[w.ID]; claimed {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

// TryClaim atomically marks the worker unavailable for the request. Returns
// false when the worker is unknown, already claimed or already unavailable.
func (m *MemoryDirectory) TryClaim(_ context.Context, workerID, requestID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[workerID]
	if !ok || !w.Available {
		return false, nil
	}
	if _, claimed := m.claims[workerID]; claimed {
		return false, nil
	}
	m.claims[workerID] = requestID
	w.Available = false
	m.workers[workerID] = w
	return true, nil
}

// Release frees the worker for new assignments.
func (m *MemoryDirectory) Release(_ context.Context, workerID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, workerID)
	if w, ok := m.workers[workerID]; ok {
		w.Available = true
		m.workers[workerID] = w
	}
	return nil
}
