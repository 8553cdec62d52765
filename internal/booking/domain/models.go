package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	dispatchdomain "github.com/example/fieldserve/internal/dispatch/domain"
)

// BookingStatus mirrors the customer-facing lifecycle of a service booking.
type BookingStatus string

const (
	StatusConfirmed      BookingStatus = "confirmed"
	StatusWorkerAssigned BookingStatus = "worker_assigned"
	StatusCompleted      BookingStatus = "completed"
	StatusCancelled      BookingStatus = "cancelled"
)

var ErrBookingNotFound = errors.New("booking not found")

// Booking is one customer request for a field service visit.
type Booking struct {
	ID           uuid.UUID
	CustomerName string
	Phone        string
	Email        string
	Address      string
	Category     string
	Description  string
	Urgent       bool
	// Location is nil when the customer declined to share coordinates;
	// dispatch then falls back to the configured default location.
	Location *dispatchdomain.GeoPoint

	Status      BookingStatus
	WorkerID    *uuid.UUID
	CreatedAt   time.Time
	CompletedAt *time.Time
	Version     int64
}

// Repository persists bookings.
type Repository interface {
	Create(ctx context.Context, booking Booking) (Booking, error)
	GetByID(ctx context.Context, id uuid.UUID) (Booking, error)
	Update(ctx context.Context, booking Booking) (Booking, error)
}
