package dispatch

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/example/fieldserve/internal/dispatch/domain"
	"github.com/example/fieldserve/internal/geo"
)

// NearbySource narrows the candidate set using a spatial index before the
// dispatcher applies its own ordering. Optional; without one the dispatcher
// scans the full directory listing, which is fine at current fleet sizes.
type NearbySource interface {
	Nearby(ctx context.Context, category string, origin domain.GeoPoint, radiusKM float64, limit int) ([]domain.Worker, error)
}

// Config tunes dispatch behaviour.
type Config struct {
	// DefaultLocation stands in for requests submitted without coordinates.
	// Flagged for product review: a silent fallback can mis-route dispatch,
	// so its use is logged.
	DefaultLocation domain.GeoPoint
	// SearchRadiusKM bounds the NearbySource query.
	SearchRadiusKM float64
	// CandidateLimit caps how many candidates are considered per attempt.
	CandidateLimit int
}

func (c Config) withDefaults() Config {
	if c.SearchRadiusKM <= 0 {
		c.SearchRadiusKM = 25
	}
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = 10
	}
	return c
}

// Dispatcher selects the nearest qualified available worker for a request
// and claims it atomically so two concurrent dispatches cannot pick the same
// worker. Greedy and request-local; requests arrive independently and are
// served with low latency rather than globally optimized.
type Dispatcher struct {
	directory domain.WorkerDirectory
	nearby    NearbySource
	claims    domain.ClaimStore
	logger    *zap.Logger
	cfg       Config
}

// New constructs a Dispatcher.
func New(directory domain.WorkerDirectory, claims domain.ClaimStore, logger *zap.Logger, cfg Config) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{directory: directory, claims: claims, logger: logger, cfg: cfg.withDefaults()}
}

// WithNearbySource installs a spatial prefilter for candidate listing.
func (d *Dispatcher) WithNearbySource(src NearbySource) *Dispatcher {
	d.nearby = src
	return d
}

type candidate struct {
	worker     domain.Worker
	distanceKM float64
}

// Assign returns the claimed worker for the request or ErrNoCandidate when
// no qualified available worker exists. The claim happens inside the same
// logical operation: a losing concurrent caller sees the worker as taken and
// moves on to the next candidate.
func (d *Dispatcher) Assign(ctx context.Context, req domain.DispatchRequest) (domain.AssignmentResult, error) {
	start := time.Now()
	origin := d.origin(req)

	workers, err := d.listCandidates(ctx, req.Category, origin)
	if err != nil {
		dispatchAttempts.WithLabelValues("error").Inc()
		return domain.AssignmentResult{}, err
	}

	candidates := make([]candidate, 0, len(workers))
	for _, w := range workers {
		if !w.Available || w.Category != req.Category || !w.Location.Valid() {
			continue
		}
		dist, err := geo.Distance(w.Location, origin)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{worker: w, distanceKM: dist})
	}

	// Nearest first; ties go to the higher-rated worker, then the lower id,
	// so identical input always produces the same assignment.
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.distanceKM != b.distanceKM {
			return a.distanceKM < b.distanceKM
		}
		if a.worker.Rating != b.worker.Rating {
			return a.worker.Rating > b.worker.Rating
		}
		return a.worker.ID.String() < b.worker.ID.String()
	})

	if len(candidates) > d.cfg.CandidateLimit {
		candidates = candidates[:d.cfg.CandidateLimit]
	}

	for _, c := range candidates {
		claimed, err := d.claims.TryClaim(ctx, c.worker.ID, req.ID)
		if err != nil {
			d.logger.Warn("claim attempt failed", zap.Error(err), zap.String("worker_id", c.worker.ID.String()))
			continue
		}
		if claimed {
			dispatchAttempts.WithLabelValues("matched").Inc()
			dispatchDuration.WithLabelValues("matched").Observe(time.Since(start).Seconds())
			return domain.AssignmentResult{
				RequestID:  req.ID,
				WorkerID:   c.worker.ID,
				DistanceKM: c.distanceKM,
			}, nil
		}
	}

	dispatchAttempts.WithLabelValues("no_candidate").Inc()
	dispatchDuration.WithLabelValues("no_candidate").Observe(time.Since(start).Seconds())
	return domain.AssignmentResult{}, domain.ErrNoCandidate
}

func (d *Dispatcher) origin(req domain.DispatchRequest) domain.GeoPoint {
	if req.Location != nil && req.Location.Valid() {
		return *req.Location
	}
	d.logger.Info("request without coordinates, using default location",
		zap.String("request_id", req.ID.String()),
		zap.Float64("lat", d.cfg.DefaultLocation.Lat),
		zap.Float64("lng", d.cfg.DefaultLocation.Lng))
	return d.cfg.DefaultLocation
}

func (d *Dispatcher) listCandidates(ctx context.Context, category string, origin domain.GeoPoint) ([]domain.Worker, error) {
	if d.nearby != nil {
		return d.nearby.Nearby(ctx, category, origin, d.cfg.SearchRadiusKM, d.cfg.CandidateLimit)
	}
	return d.directory.ListAvailable(ctx, category)
}
