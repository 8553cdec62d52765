package tracking

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/fieldserve/internal/dispatch/domain"
	"github.com/example/fieldserve/internal/geo"
)

// ArrivalRadiusKM is the distance under which a worker counts as arrived.
const ArrivalRadiusKM = 0.1

// Snapshot is an immutable, derived view of a session at one instant.
// Distance and ETA are recomputed on demand, never stored as ground truth.
type Snapshot struct {
	SessionID   uuid.UUID            `json:"sessionId"`
	Latitude    float64              `json:"latitude"`
	Longitude   float64              `json:"longitude"`
	DistanceKM  float64              `json:"distanceKm"`
	ETAMinutes  int                  `json:"etaMinutes"`
	Status      domain.SessionStatus `json:"status"`
	LastUpdated time.Time            `json:"lastUpdated"`
	Stale       bool                 `json:"stale,omitempty"`
}

// ReportResult describes what a location report did to the session.
type ReportResult struct {
	Snapshot Snapshot
	// Applied is false when the report was discarded as stale.
	Applied bool
	// Arrived is true only for the report that transitioned the session
	// into the arrived status.
	Arrived bool
}

// Session is the live record of one assigned worker heading to one request.
// All mutation goes through Report, Complete and Cancel; callers never write
// fields directly.
type Session struct {
	mu          sync.Mutex
	id          uuid.UUID
	workerID    uuid.UUID
	requester   domain.GeoPoint
	worker      domain.GeoPoint
	status      domain.SessionStatus
	lastUpdated time.Time
	est         geo.Estimator
	staleAfter  time.Duration
	clock       domain.Clock
}

// NewSession creates a session in the assigned status. The requester position
// is fixed for the session's lifetime.
func NewSession(id, workerID uuid.UUID, worker, requester domain.GeoPoint, est geo.Estimator, clock domain.Clock) (*Session, error) {
	if !worker.Valid() || !requester.Valid() {
		return nil, domain.ErrInvalidCoordinate
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Session{
		id:          id,
		workerID:    workerID,
		requester:   requester,
		worker:      worker,
		status:      domain.StatusAssigned,
		lastUpdated: clock.Now(),
		est:         est,
		clock:       clock,
	}, nil
}

// SetStaleThreshold makes snapshots carry a stale marker once no report has
// arrived for the given duration. Zero disables the marker; the status itself
// is never transitioned by elapsed time.
func (s *Session) SetStaleThreshold(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staleAfter = d
}

func (s *Session) ID() uuid.UUID       { return s.id }
func (s *Session) WorkerID() uuid.UUID { return s.workerID }

// Status returns the current lifecycle status.
func (s *Session) Status() domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Report applies a worker location report. Reports carrying a timestamp older
// than the last applied one are discarded without changing state, so
// out-of-order delivery cannot regress position or status.
func (s *Session) Report(point domain.GeoPoint, ts time.Time) (ReportResult, error) {
	if !point.Valid() {
		return ReportResult{}, domain.ErrInvalidCoordinate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return ReportResult{Snapshot: s.snapshotLocked()}, domain.ErrSessionTerminal
	}
	if ts.Before(s.lastUpdated) {
		return ReportResult{Snapshot: s.snapshotLocked()}, nil
	}

	s.worker = point
	s.lastUpdated = ts

	dist, _ := geo.Distance(s.worker, s.requester)
	arrived := false
	switch {
	case dist < ArrivalRadiusKM:
		if s.status != domain.StatusArrived {
			s.status = domain.StatusArrived
			arrived = true
		}
	case s.status != domain.StatusArrived:
		s.status = domain.StatusEnRoute
	}

	return ReportResult{Snapshot: s.snapshotLocked(), Applied: true, Arrived: arrived}, nil
}

// Complete forces the session into the completed status.
func (s *Session) Complete() (Snapshot, error) {
	return s.finish(domain.StatusCompleted)
}

// Cancel forces the session into the cancelled status from any non-terminal
// state.
func (s *Session) Cancel() (Snapshot, error) {
	return s.finish(domain.StatusCancelled)
}

func (s *Session) finish(next domain.SessionStatus) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return s.snapshotLocked(), domain.ErrSessionTerminal
	}
	s.status = next
	s.lastUpdated = s.clock.Now()
	return s.snapshotLocked(), nil
}

// Snapshot derives the current point-in-time view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	dist, _ := geo.Distance(s.worker, s.requester)
	snap := Snapshot{
		SessionID:   s.id,
		Latitude:    s.worker.Lat,
		Longitude:   s.worker.Lng,
		DistanceKM:  math.Round(dist*100) / 100,
		ETAMinutes:  s.est.Minutes(dist),
		Status:      s.status,
		LastUpdated: s.lastUpdated,
	}
	if s.staleAfter > 0 && !s.status.Terminal() {
		snap.Stale = s.clock.Now().Sub(s.lastUpdated) > s.staleAfter
	}
	return snap
}
