package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultPushInterval is how often a session's observers receive a snapshot
// even without a state change.
const DefaultPushInterval = 5 * time.Second

const observerBuffer = 8

type observer struct {
	ch chan Snapshot
}

// feed holds the observers of a single session. Delivery and membership
// changes are serialized by the feed's own lock, never by a hub-wide one.
type feed struct {
	mu        sync.Mutex
	observers map[*observer]struct{}
	kick      chan struct{}
}

func newFeed() *feed {
	return &feed{
		observers: make(map[*observer]struct{}),
		kick:      make(chan struct{}, 1),
	}
}

func (f *feed) add(o *observer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observers[o] = struct{}{}
}

func (f *feed) remove(o *observer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.observers[o]; ok {
		delete(f.observers, o)
		close(o.ch)
	}
}

// broadcast delivers snap to every observer. An observer that cannot accept
// the snapshot is evicted; eviction never interrupts delivery to the rest.
func (f *feed) broadcast(snap Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for o := range f.observers {
		select {
		case o.ch <- snap:
			snapshotsDelivered.Inc()
		default:
			delete(f.observers, o)
			close(o.ch)
			observersEvicted.Inc()
		}
	}
}

func (f *feed) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for o := range f.observers {
		delete(f.observers, o)
		close(o.ch)
	}
}

// Hub fans tracking snapshots out to all observers of each session. Every
// session gets an independently cancellable push loop; a broken observer or a
// finished session never stalls delivery for the others.
type Hub struct {
	mu       sync.Mutex
	feeds    map[uuid.UUID]*feed
	registry *Registry
	interval time.Duration
	logger   *zap.Logger
}

// NewHub constructs a hub over the registry.
func NewHub(registry *Registry, interval time.Duration, logger *zap.Logger) *Hub {
	if interval <= 0 {
		interval = DefaultPushInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		feeds:    make(map[uuid.UUID]*feed),
		registry: registry,
		interval: interval,
		logger:   logger,
	}
}

// Track starts the push loop for the session. The loop runs until the session
// reaches a terminal status or ctx is cancelled.
func (h *Hub) Track(ctx context.Context, session *Session) {
	h.mu.Lock()
	f, ok := h.feeds[session.ID()]
	if !ok {
		f = newFeed()
		h.feeds[session.ID()] = f
	}
	h.mu.Unlock()
	if ok {
		return
	}
	go h.run(ctx, session, f)
}

// Kick schedules an immediate push for the session, ahead of the next tick.
func (h *Hub) Kick(id uuid.UUID) {
	h.mu.Lock()
	f, ok := h.feeds[id]
	h.mu.Unlock()
	if !ok {
		return
	}
	select {
	case f.kick <- struct{}{}:
	default:
	}
}

// Subscribe attaches an observer to the session's feed. The returned channel
// receives the current snapshot immediately, then one snapshot per push, and
// is closed after the terminal snapshot or when ctx is cancelled. Subscribing
// to a session that is already terminal yields exactly the final snapshot.
func (h *Hub) Subscribe(ctx context.Context, id uuid.UUID) (<-chan Snapshot, error) {
	session, err := h.registry.Get(id)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	f, live := h.feeds[id]
	h.mu.Unlock()

	if !live || session.Status().Terminal() {
		ch := make(chan Snapshot, 1)
		ch <- session.Snapshot()
		close(ch)
		return ch, nil
	}

	o := &observer{ch: make(chan Snapshot, observerBuffer)}
	o.ch <- session.Snapshot()
	f.add(o)

	go func() {
		<-ctx.Done()
		f.remove(o)
	}()

	return o.ch, nil
}

func (h *Hub) run(ctx context.Context, session *Session, f *feed) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			f.closeAll()
			h.drop(session.ID())
			return
		case <-f.kick:
		case <-ticker.C:
		}

		snap := session.Snapshot()
		f.broadcast(snap)
		if snap.Status.Terminal() {
			f.closeAll()
			h.drop(session.ID())
			h.logger.Info("push loop finished",
				zap.String("session_id", session.ID().String()),
				zap.String("status", string(snap.Status)))
			return
		}
	}
}

func (h *Hub) drop(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.feeds, id)
}
