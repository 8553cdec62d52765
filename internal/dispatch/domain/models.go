package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// SessionStatus tracks a worker's progress towards a job site.
type SessionStatus string

const (
	StatusAssigned  SessionStatus = "assigned"
	StatusEnRoute   SessionStatus = "en_route"
	StatusArrived   SessionStatus = "arrived"
	StatusCompleted SessionStatus = "completed"
	StatusCancelled SessionStatus = "cancelled"
)

// Terminal reports whether no further transitions are permitted.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

var allowedTransitions = map[SessionStatus][]SessionStatus{
	StatusAssigned: {StatusEnRoute, StatusArrived, StatusCompleted, StatusCancelled},
	StatusEnRoute:  {StatusArrived, StatusCompleted, StatusCancelled},
	StatusArrived:  {StatusCompleted, StatusCancelled},
}

// CanTransitionTo reports whether the move from s to next is allowed. Statuses
// are monotonic along assigned → en_route → arrived → completed; cancelled is
// reachable from every non-terminal status.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	if s == next {
		return true
	}
	for _, candidate := range allowedTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

var (
	ErrInvalidCoordinate = errors.New("coordinate out of range")
	ErrNoCandidate       = errors.New("no qualified worker available")
	ErrSessionNotFound   = errors.New("tracking session not found")
	ErrSessionExists     = errors.New("tracking session already exists")
	ErrSessionTerminal   = errors.New("tracking session already terminal")
)

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies inside latitude [-90,90] and
// longitude [-180,180].
func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Worker is a read-only snapshot of a field worker taken from the directory
// at dispatch time.
type Worker struct {
	ID        uuid.UUID
	Name      string
	Phone     string
	Category  string
	Location  GeoPoint
	Rating    float64
	Available bool
}

// DispatchRequest describes one request to be matched with a worker.
// Immutable once handed to the Dispatcher. A nil Location falls back to the
// configured default location.
type DispatchRequest struct {
	ID       uuid.UUID
	Category string
	Location *GeoPoint
	Urgent   bool
}

// AssignmentResult is produced once per request and never revised; a failed
// dispatch is retried by submitting a new request.
type AssignmentResult struct {
	RequestID  uuid.UUID `json:"request_id"`
	WorkerID   uuid.UUID `json:"worker_id"`
	DistanceKM float64   `json:"distance_km"`
}

// WorkerDirectory lists dispatchable workers. Implemented by the surrounding
// worker-management system; the core only reads snapshots from it.
type WorkerDirectory interface {
	ListAvailable(ctx context.Context, category string) ([]Worker, error)
}

// ClaimStore flips a worker's availability exactly once per assignment. Only
// one concurrent TryClaim for a given worker may succeed.
type ClaimStore interface {
	TryClaim(ctx context.Context, workerID, requestID uuid.UUID) (bool, error)
	Release(ctx context.Context, workerID uuid.UUID) error
}

// Notifier delivers a human-facing message to a phone number or address.
// Best effort: failures are logged by implementations, never propagated into
// the dispatch or tracking path.
type Notifier interface {
	Notify(ctx context.Context, target, message string)
}

// EventType labels dispatch lifecycle events on the bus.
type EventType string

const (
	EventWorkerAssigned   EventType = "WorkerAssigned"
	EventWorkerArrived    EventType = "WorkerArrived"
	EventSessionCompleted EventType = "SessionCompleted"
	EventSessionCancelled EventType = "SessionCancelled"
)

// Event is a dispatch lifecycle event.
type Event struct {
	SessionID uuid.UUID      `json:"session_id"`
	Type      EventType      `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// EventPublisher emits lifecycle events for downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
