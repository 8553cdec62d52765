package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/fieldserve/internal/dispatch/domain"
	"github.com/example/fieldserve/internal/geo"
)

// Config tunes session lifecycle behaviour.
type Config struct {
	// PushInterval is the fan-out cadence. Defaults to 5s.
	PushInterval time.Duration
	// RemoveGrace is how long a terminal session stays retrievable before
	// the registry drops it. Defaults to 30s.
	RemoveGrace time.Duration
	// StaleAfter, when positive, marks snapshots stale once no report has
	// arrived for that long. The session status is never auto-transitioned;
	// the policy for silent workers is a product decision left open here.
	StaleAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.PushInterval <= 0 {
		c.PushInterval = DefaultPushInterval
	}
	if c.RemoveGrace <= 0 {
		c.RemoveGrace = 30 * time.Second
	}
	return c
}

// Tracker owns session lifecycles: it creates sessions after dispatch,
// applies worker location reports, serves snapshots and streams, and releases
// worker claims when a session ends.
type Tracker struct {
	registry *Registry
	hub      *Hub
	claims   domain.ClaimStore
	events   domain.EventPublisher
	clock    domain.Clock
	logger   *zap.Logger
	est      geo.Estimator
	cfg      Config

	// baseCtx bounds push loops to the tracker's lifetime rather than to
	// the request that happened to create the session.
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewTracker wires the tracker with its collaborators. claims and events may
// be nil when claim release or event publishing is handled elsewhere.
func NewTracker(claims domain.ClaimStore, events domain.EventPublisher, clock domain.Clock, logger *zap.Logger, cfg Config) *Tracker {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	registry := NewRegistry()
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		registry: registry,
		hub:      NewHub(registry, cfg.PushInterval, logger.Named("hub")),
		claims:   claims,
		events:   events,
		clock:    clock,
		logger:   logger,
		est:      geo.DefaultEstimator(),
		cfg:      cfg,
		baseCtx:  baseCtx,
		cancel:   cancel,
	}
}

// Close stops every push loop. In-flight observers see their streams closed.
func (t *Tracker) Close() {
	t.cancel()
}

// Start creates and registers a session for a fresh assignment and begins its
// push loop. The session id equals the request id.
func (t *Tracker) Start(ctx context.Context, assignment domain.AssignmentResult, worker, requester domain.GeoPoint) (*Session, error) {
	session, err := NewSession(assignment.RequestID, assignment.WorkerID, worker, requester, t.est, t.clock)
	if err != nil {
		return nil, err
	}
	if t.cfg.StaleAfter > 0 {
		session.SetStaleThreshold(t.cfg.StaleAfter)
	}
	if err := t.registry.Create(session); err != nil {
		return nil, err
	}
	t.hub.Track(t.baseCtx, session)
	t.publish(ctx, domain.Event{
		SessionID: session.ID(),
		Type:      domain.EventWorkerAssigned,
		Payload:   map[string]any{"worker_id": assignment.WorkerID.String()},
	})
	return session, nil
}

// ReportLocation applies a worker position report to the session. Stale
// reports (older timestamp than the last applied one) are a silent no-op.
func (t *Tracker) ReportLocation(ctx context.Context, id uuid.UUID, lat, lng float64, ts time.Time) error {
	session, err := t.registry.Get(id)
	if err != nil {
		return err
	}
	result, err := session.Report(domain.GeoPoint{Lat: lat, Lng: lng}, ts)
	if err != nil {
		if errors.Is(err, domain.ErrSessionTerminal) {
			terminalReports.Inc()
			t.logger.Info("report after terminal status ignored", zap.String("session_id", id.String()))
		}
		return err
	}
	if !result.Applied {
		staleReports.Inc()
		return nil
	}
	t.hub.Kick(id)
	if result.Arrived {
		t.publish(ctx, domain.Event{SessionID: id, Type: domain.EventWorkerArrived})
	}
	return nil
}

// Complete forces the session into completed, pushes the final snapshot and
// frees the worker for new assignments.
func (t *Tracker) Complete(ctx context.Context, id uuid.UUID) (Snapshot, error) {
	return t.finish(ctx, id, domain.EventSessionCompleted, (*Session).Complete)
}

// Cancel forces the session into cancelled from any non-terminal state.
func (t *Tracker) Cancel(ctx context.Context, id uuid.UUID) (Snapshot, error) {
	return t.finish(ctx, id, domain.EventSessionCancelled, (*Session).Cancel)
}

func (t *Tracker) finish(ctx context.Context, id uuid.UUID, event domain.EventType, fn func(*Session) (Snapshot, error)) (Snapshot, error) {
	session, err := t.registry.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	snap, err := fn(session)
	if err != nil {
		return snap, err
	}
	t.hub.Kick(id)
	if t.claims != nil {
		if err := t.claims.Release(ctx, session.WorkerID()); err != nil {
			t.logger.Warn("release worker claim", zap.Error(err), zap.String("worker_id", session.WorkerID().String()))
		}
	}
	t.publish(ctx, domain.Event{SessionID: id, Type: event})
	t.registry.RemoveAfter(id, t.cfg.RemoveGrace)
	return snap, nil
}

// Snapshot returns the current derived view for the session.
func (t *Tracker) Snapshot(id uuid.UUID) (Snapshot, error) {
	session, err := t.registry.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return session.Snapshot(), nil
}

// Subscribe streams snapshots for the session until it turns terminal or ctx
// is cancelled.
func (t *Tracker) Subscribe(ctx context.Context, id uuid.UUID) (<-chan Snapshot, error) {
	return t.hub.Subscribe(ctx, id)
}

// Registry exposes the session store, mainly for tests and admin surfaces.
func (t *Tracker) Registry() *Registry { return t.registry }

func (t *Tracker) publish(ctx context.Context, event domain.Event) {
	if t.events == nil {
		return
	}
	if err := t.events.Publish(ctx, event); err != nil {
		t.logger.Warn("publish event", zap.Error(err), zap.String("type", string(event.Type)))
	}
}
