package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/example/fieldserve/internal/booking/domain"
)

// MemoryRepository provides an in-memory implementation suitable for tests
// and local demos.
type MemoryRepository struct {
	mu       sync.RWMutex
	bookings map[uuid.UUID]domain.Booking
}

// NewMemoryRepository constructs an empty memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{bookings: make(map[uuid.UUID]domain.Booking)}
}

// Create stores the booking and returns it.
func (m *MemoryRepository) Create(_ context.Context, booking domain.Booking) (domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[booking.ID] = booking
	return booking, nil
}

// GetByID retrieves a booking.
func (m *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (domain.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	booking, ok := m.bookings[id]
	if !ok {
		return domain.Booking{}, domain.ErrBookingNotFound
	}
	return booking, nil
}

// Update replaces the stored booking, bumping its version.
func (m *MemoryRepository) Update(_ context.Context, booking domain.Booking) (domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.bookings[booking.ID]
	if !ok {
		return domain.Booking{}, domain.ErrBookingNotFound
	}
	booking.Version = existing.Version + 1
	m.bookings[booking.ID] = booking
	return booking, nil
}
